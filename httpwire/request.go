/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpwire

import (
	"net"
	"strconv"
)

// Request is an HTTP/1.1 request read off the wire. It is not modified after parsing.
type Request struct {
	// Method is the uppercased request method token.
	Method string
	// Target is the request target exactly as it appeared in the request line.
	Target string
	// Path is the percent-decoded path. It equals RawPath when decoding fails.
	Path     string
	RawPath  string
	RawQuery string
	Proto    string
	Header   Header
	Body     []byte

	// Host and Port identify the target authority (Host header, absolute-form URL or CONNECT authority).
	Host string
	Port int

	// AbsoluteForm is true for "http://host/path" targets sent to a proxy.
	AbsoluteForm bool
}

// HostPort returns "host:port" of the request target.
func (r *Request) HostPort() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// RequestURI returns the origin-form target (raw path plus query) to send upstream.
func (r *Request) RequestURI() string {
	uri := r.RawPath
	if uri == "" {
		uri = "/"
	}
	if r.RawQuery != "" {
		uri += "?" + r.RawQuery
	}
	return uri
}
