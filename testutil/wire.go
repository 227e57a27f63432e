/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"bufio"
	"bytes"
	"io"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wireserver/httpwire"
)

// WireResponse is a response read back from raw bytes.
type WireResponse struct {
	Status int
	Header httpwire.Header
	Body   []byte
}

// ParseWireResponse parses raw bytes returned by the server into WireResponse.
func ParseWireResponse(raw []byte) (*WireResponse, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	head, err := httpwire.ReadResponseHead(r, 0)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(head.BodyReader(r, "GET"))
	if err != nil {
		return nil, err
	}
	return &WireResponse{Status: head.Status, Header: head.Header, Body: body}, nil
}

// RequireWireResponse parses raw bytes and fails the test immediately if they are not a valid response.
func RequireWireResponse(t require.TestingT, raw []byte) *WireResponse {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	resp, err := ParseWireResponse(raw)
	require.NoError(t, err, "raw response: %q", raw)
	return resp
}

// RequireRoundTrip sends raw request bytes to addr and returns the parsed response.
func RequireRoundTrip(t require.TestingT, addr string, rawReq string) *WireResponse {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	raw, err := SendRaw(addr, []byte(rawReq), 5*time.Second)
	require.NoError(t, err)
	return RequireWireResponse(t, raw)
}
