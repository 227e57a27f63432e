/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"time"

	"github.com/acronis/go-wireserver/httpwire"
)

// Entry is a cached response. The cache keeps its own copy of the header and body.
type Entry struct {
	Status    int
	Header    httpwire.Header
	Body      []byte
	ExpiresAt time.Time
}

// NewEntry builds an entry from a response, dropping fields that must be recomputed for every delivery.
func NewEntry(status int, header *httpwire.Header, body []byte) Entry {
	h := header.Clone()
	h.RemoveHopByHop()
	h.Del("Content-Length")
	h.Del(HeaderXCache)
	return Entry{Status: status, Header: h, Body: body}
}

func (e *Entry) clone() Entry {
	return Entry{
		Status:    e.Status,
		Header:    e.Header.Clone(),
		Body:      append([]byte(nil), e.Body...),
		ExpiresAt: e.ExpiresAt,
	}
}

// Response converts the entry to a response marked as a cache hit.
func (e *Entry) Response() *httpwire.Response {
	resp := &httpwire.Response{Status: e.Status, Header: e.Header.Clone(), Body: e.Body}
	resp.Header.Set(HeaderXCache, CacheHit)
	return resp
}

// Size is the number of body bytes.
func (e *Entry) Size() int {
	return len(e.Body)
}
