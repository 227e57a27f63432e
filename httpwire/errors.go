/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpwire

import (
	"errors"
	"fmt"
	"net"
)

// Parse failure kinds. Every *ParseError unwraps to one of them.
var (
	ErrEmptyRequest         = errors.New("empty request")
	ErrIncompleteHeader     = errors.New("incomplete request header")
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrHeaderTooLarge       = errors.New("request header too large")
	ErrMissingHost          = errors.New("missing host")
	ErrMalformedHost        = errors.New("malformed host")
	ErrUnsupportedEncoding  = errors.New("unsupported transfer encoding")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrIncompleteBody       = errors.New("incomplete request body")
	ErrMalformedStatusLine  = errors.New("malformed status line")
)

// ParseError describes why bytes read from a connection are not an acceptable HTTP message.
type ParseError struct {
	Kind   error
	Detail string
}

func newParseError(kind error, format string, args ...interface{}) *ParseError {
	return &ParseError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

// Unwrap returns the kind, so errors.Is(err, ErrBodyTooLarge) works.
func (e *ParseError) Unwrap() error {
	return e.Kind
}

// IsTimeout reports whether err is (or wraps) a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StatusError is returned by a handler that wants a specific response sent instead of a generic 500.
type StatusError struct {
	Response *Response
	Err      error
}

// NewStatusError creates a StatusError with a plain-text response.
func NewStatusError(status int, msg string) *StatusError {
	return &StatusError{Response: NewTextResponse(status, msg), Err: errors.New(msg)}
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("status %d", e.Response.Status)
	}
	return fmt.Sprintf("status %d: %v", e.Response.Status, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
