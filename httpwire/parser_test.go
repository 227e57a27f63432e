/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpwire

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseString(t *testing.T, p *Parser, raw string) (*Request, error) {
	t.Helper()
	return p.Parse(bufio.NewReader(strings.NewReader(raw)))
}

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		assert func(t *testing.T, req *Request)
	}{
		{
			name: "origin-form GET",
			raw:  "get /items/42?color=red HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, "GET", req.Method)
				assert.Equal(t, "/items/42", req.Path)
				assert.Equal(t, "color=red", req.RawQuery)
				assert.Equal(t, "HTTP/1.1", req.Proto)
				assert.Equal(t, "example.com", req.Host)
				assert.Equal(t, 80, req.Port)
				assert.False(t, req.AbsoluteForm)
				assert.Empty(t, req.Body)
				assert.Equal(t, "/items/42?color=red", req.RequestURI())
			},
		},
		{
			name: "POST with exact body",
			raw:  "POST /echo HTTP/1.1\r\nHost: localhost:8080\r\nContent-Length: 5\r\n\r\nhello",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, []byte("hello"), req.Body)
				assert.Equal(t, 8080, req.Port)
				assert.Equal(t, "localhost:8080", req.HostPort())
			},
		},
		{
			name: "body longer than content length is not consumed",
			raw:  "POST /echo HTTP/1.1\r\nHost: h\r\nContent-Length: 3\r\n\r\nabcdef",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, []byte("abc"), req.Body)
			},
		},
		{
			name: "absolute-form target",
			raw:  "GET http://origin.test:8081/a%20b?q=1 HTTP/1.1\r\nHost: ignored\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.True(t, req.AbsoluteForm)
				assert.Equal(t, "origin.test", req.Host)
				assert.Equal(t, 8081, req.Port)
				assert.Equal(t, "/a b", req.Path)
				assert.Equal(t, "/a%20b", req.RawPath)
				assert.Equal(t, "q=1", req.RawQuery)
			},
		},
		{
			name: "absolute-form without path",
			raw:  "GET http://origin.test HTTP/1.1\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, "/", req.Path)
				assert.Equal(t, 80, req.Port)
			},
		},
		{
			name: "CONNECT authority-form",
			raw:  "CONNECT secure.test HTTP/1.1\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, "secure.test", req.Host)
				assert.Equal(t, 443, req.Port)
			},
		},
		{
			name: "CONNECT without authority is left to the caller",
			raw:  "CONNECT / HTTP/1.1\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, "CONNECT", req.Method)
				assert.Empty(t, req.Host)
			},
		},
		{
			name: "encoded dot segments are decoded, not resolved",
			raw:  "GET /%2e%2e HTTP/1.1\r\nHost: h\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, "/..", req.Path)
			},
		},
		{
			name: "plus is kept and invalid escape falls back to raw",
			raw:  "GET /a+b%zz HTTP/1.1\r\nHost: h\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, "/a+b%zz", req.Path)
			},
		},
		{
			name: "bare LF line endings and lines without colon",
			raw:  "GET / HTTP/1.1\nHost: h\ngarbage line\nX-A: 1\n\n",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, 2, req.Header.Len())
				assert.Equal(t, "1", req.Header.Get("x-a"))
			},
		},
		{
			name: "repeated header keeps last value at first position",
			raw:  "GET / HTTP/1.1\r\nX-Trace: one\r\nHost: h\r\nx-trace: two\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				fields := req.Header.Fields()
				require.Len(t, fields, 2)
				assert.Equal(t, HeaderField{Name: "X-Trace", Value: "two"}, fields[0])
			},
		},
		{
			name: "invalid and negative content length mean empty body",
			raw:  "POST / HTTP/1.1\r\nHost: h\r\nContent-Length: -7\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.Empty(t, req.Body)
			},
		},
		{
			name: "IPv6 host",
			raw:  "GET / HTTP/1.1\r\nHost: [::1]:9000\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, "::1", req.Host)
				assert.Equal(t, 9000, req.Port)
				assert.Equal(t, "[::1]:9000", req.HostPort())
			},
		},
		{
			name: "leading empty lines are skipped",
			raw:  "\r\n\r\nGET / HTTP/1.1\r\nHost: h\r\n\r\n",
			assert: func(t *testing.T, req *Request) {
				assert.Equal(t, "GET", req.Method)
			},
		},
	}
	p := NewParser(ParserOpts{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parseString(t, p, tt.raw)
			require.NoError(t, err)
			tt.assert(t, req)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"empty stream", "", ErrEmptyRequest},
		{"stream ends in header", "GET / HTTP/1.1\r\nHost: h\r\n", ErrIncompleteHeader},
		{"two tokens", "GET /\r\nHost: h\r\n\r\n", ErrMalformedRequestLine},
		{"unsupported target", "GET index.html HTTP/1.1\r\nHost: h\r\n\r\n", ErrMalformedRequestLine},
		{"missing host", "GET / HTTP/1.1\r\n\r\n", ErrMissingHost},
		{"bad port", "GET / HTTP/1.1\r\nHost: h:99999\r\n\r\n", ErrMalformedHost},
		{"empty port", "GET / HTTP/1.1\r\nHost: h:\r\n\r\n", ErrMalformedHost},
		{"chunked", "POST /echo HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: gzip, Chunked\r\n\r\n", ErrUnsupportedEncoding},
		{"body too large", "POST /echo HTTP/1.1\r\nHost: h\r\nContent-Length: 1048577\r\n\r\n", ErrBodyTooLarge},
		{"short body", "POST /echo HTTP/1.1\r\nHost: h\r\nContent-Length: 10\r\n\r\nabc", ErrIncompleteBody},
	}
	p := NewParser(ParserOpts{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseString(t, p, tt.raw)
			require.ErrorIs(t, err, tt.wantErr)
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestParse_HeaderCeiling(t *testing.T) {
	p := NewParser(ParserOpts{MaxHeaderBytes: 1024})
	head := "GET / HTTP/1.1\r\nHost: h\r\n"

	fits := head + "X-Pad: " + strings.Repeat("a", 1024-len(head)-len("X-Pad: \r\n")-2) + "\r\n\r\n"
	require.Len(t, fits, 1024)
	_, err := parseString(t, p, fits)
	require.NoError(t, err)

	overflow := head + "X-Pad: " + strings.Repeat("a", 1024) + "\r\n\r\n"
	_, err = parseString(t, p, overflow)
	require.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestParse_HeaderFieldCeiling(t *testing.T) {
	buildRaw := func(fields int) string {
		var sb strings.Builder
		sb.WriteString("GET / HTTP/1.1\r\nHost: h\r\n")
		for i := 1; i < fields; i++ {
			fmt.Fprintf(&sb, "X-F%d: v\r\n", i)
		}
		sb.WriteString("no colon here\r\n\r\n")
		return sb.String()
	}

	req, err := parseString(t, NewParser(ParserOpts{MaxHeaderFields: 10}), buildRaw(10))
	require.NoError(t, err)
	require.Equal(t, 10, req.Header.Len())

	_, err = parseString(t, NewParser(ParserOpts{MaxHeaderFields: 10}), buildRaw(11))
	require.ErrorIs(t, err, ErrHeaderTooLarge)

	_, err = Parse(bufio.NewReader(strings.NewReader(buildRaw(DefaultMaxHeaderFields + 1))))
	require.ErrorIs(t, err, ErrHeaderTooLarge)

	// Thousands of tiny distinct fields fit into the byte ceiling but not the field ceiling.
	start := time.Now()
	_, err = Parse(bufio.NewReader(strings.NewReader(buildRaw(5000))))
	require.ErrorIs(t, err, ErrHeaderTooLarge)
	require.Less(t, time.Since(start), time.Second)
}

func TestParse_HeaderCeilingDefault(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: h\r\nX-Big: " + strings.Repeat("b", DefaultMaxHeaderBytes) + "\r\n\r\n"
	_, err := Parse(bufio.NewReader(strings.NewReader(raw)))
	require.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestParse_BodyCeilingIsInclusive(t *testing.T) {
	p := NewParser(ParserOpts{MaxBodyBytes: 8})
	req, err := parseString(t, p, "POST / HTTP/1.1\r\nHost: h\r\nContent-Length: 8\r\n\r\n12345678")
	require.NoError(t, err)
	require.Len(t, req.Body, 8)

	_, err = parseString(t, p, "POST / HTTP/1.1\r\nHost: h\r\nContent-Length: 9\r\n\r\n123456789")
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestParse_TimeoutIsNotAParseError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	require.NoError(t, server.SetReadDeadline(time.Now().Add(20*time.Millisecond)))

	go func() { _, _ = client.Write([]byte("GET / HTTP/1.1\r\n")) }()

	_, err := Parse(bufio.NewReader(server))
	require.Error(t, err)
	require.True(t, IsTimeout(err))
	var parseErr *ParseError
	require.False(t, errors.As(err, &parseErr))
}
