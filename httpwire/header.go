/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpwire

import (
	"strings"
)

// HeaderField is a single header line as it appeared on the wire.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered collection of header fields.
// Names keep the spelling they were first set with, lookups ignore case.
// The zero value is an empty header ready to use.
type Header struct {
	fields []HeaderField
}

// NewHeader creates a header from name/value pairs.
func NewHeader(pairs ...string) Header {
	var h Header
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func (h *Header) index(name string) int {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			return i
		}
	}
	return -1
}

// Get returns the value of the named field or an empty string.
func (h *Header) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup returns the value of the named field and whether it is present.
func (h *Header) Lookup(name string) (string, bool) {
	if i := h.index(name); i >= 0 {
		return h.fields[i].Value, true
	}
	return "", false
}

// Has reports whether the named field is present.
func (h *Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Set stores the value. An existing field with the same name (in any case)
// is replaced in place keeping its position and original spelling.
func (h *Header) Set(name, value string) {
	if i := h.index(name); i >= 0 {
		h.fields[i].Value = value
		return
	}
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Del removes the named field.
func (h *Header) Del(name string) {
	if i := h.index(name); i >= 0 {
		h.fields = append(h.fields[:i], h.fields[i+1:]...)
	}
}

// Len returns the number of fields.
func (h *Header) Len() int {
	return len(h.fields)
}

// Fields returns a copy of all fields in insertion order.
func (h *Header) Fields() []HeaderField {
	return append([]HeaderField(nil), h.fields...)
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() Header {
	return Header{fields: h.Fields()}
}

// hopByHopHeaders are meaningful only for a single transport-level connection.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopByHop deletes hop-by-hop fields, including the ones listed in the Connection field.
func (h *Header) RemoveHopByHop() {
	if conn := h.Get("Connection"); conn != "" {
		for _, name := range strings.Split(conn, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
