/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"errors"
	"fmt"

	"github.com/acronis/go-wireserver/httpwire"
)

// Handler failures.
var (
	ErrHandlerPanic = errors.New("handler panicked")
	ErrNoResponse   = errors.New("handler returned no response")
)

// Upstream failure kinds. Every *UpstreamError unwraps to one of them.
var (
	ErrUpstreamConnect     = errors.New("upstream connect failure")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamProtocol    = errors.New("upstream protocol error")
	ErrOutboundRateLimited = errors.New("outbound rate limit exceeded")
)

// UpstreamError is returned by ForwardBackend when the origin cannot be reached or misbehaves.
type UpstreamError struct {
	Kind    error
	Address string
	Err     error
}

func newUpstreamError(kind error, addr string, err error) *UpstreamError {
	return &UpstreamError{Kind: kind, Address: addr, Err: err}
}

// newUpstreamIOError classifies a failure of an established upstream connection.
func newUpstreamIOError(addr string, err error) *UpstreamError {
	if httpwire.IsTimeout(err) {
		return newUpstreamError(ErrUpstreamTimeout, addr, err)
	}
	return newUpstreamError(ErrUpstreamProtocol, addr, err)
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (%s)", e.Kind, e.Address)
	}
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Address, e.Err)
}

// Unwrap returns both the kind and the cause, so errors.Is works against either.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Timeout reports whether the upstream failed to answer in time.
func (e *UpstreamError) Timeout() bool {
	return e.Kind == ErrUpstreamTimeout
}
