/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"io"

	"github.com/acronis/go-wireserver/httpwire"
)

// Backend produces the response for a parsed request.
type Backend interface {
	// Dispatch returns either a buffered response or a stream that the dispatcher relays to the client.
	Dispatch(ctx context.Context, req *httpwire.Request) (*Result, error)

	// CacheScope returns the part of the cache key that identifies the origin ("" for a local backend).
	CacheScope(req *httpwire.Request) string
}

// Result is what a Backend returns. Exactly one of Response and Stream is set.
type Result struct {
	Response *httpwire.Response
	Stream   *Stream
}

// Close releases resources held by a streamed result.
func (r *Result) Close() error {
	if r == nil || r.Stream == nil || r.Stream.closer == nil {
		return nil
	}
	return r.Stream.closer.Close()
}

// Status returns the response status regardless of the result kind.
func (r *Result) Status() int {
	if r.Stream != nil {
		return r.Stream.Status
	}
	return r.Response.Status
}

// Stream is a response whose body is read incrementally from an upstream connection.
type Stream struct {
	Status int
	Reason string
	Header httpwire.Header
	// ContentLength is the body length, or -1 when the body ends with the upstream connection.
	ContentLength int64
	Body          io.Reader

	closer io.Closer
}

// NewStream creates a Stream. The closer (if any) is called when the dispatcher is done with the stream.
func NewStream(status int, reason string, header httpwire.Header, contentLength int64, body io.Reader, closer io.Closer) *Stream {
	return &Stream{
		Status:        status,
		Reason:        reason,
		Header:        header,
		ContentLength: contentLength,
		Body:          body,
		closer:        closer,
	}
}
