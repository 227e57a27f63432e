/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wireserver/httpwire"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		req   httpwire.Request
		scope string
		want  string
	}{
		{"root", httpwire.Request{Method: "GET", Path: "/"}, "", "GET /"},
		{"empty path", httpwire.Request{Method: "GET", Path: ""}, "", "GET /"},
		{"trailing slash", httpwire.Request{Method: "GET", Path: "/items/"}, "", "GET /items"},
		{"query", httpwire.Request{Method: "GET", Path: "/items", RawQuery: "page=2"}, "", "GET /items?page=2"},
		{"escaped question mark", httpwire.Request{Method: "GET", Path: "/a?b", RawPath: "/a%3Fb"}, "", "GET /a%3Fb"},
		{"escaped percent", httpwire.Request{Method: "GET", Path: "/a%3Fb", RawPath: "/a%253Fb"}, "", "GET /a%253Fb"},
		{"undecodable path", httpwire.Request{Method: "GET", Path: "/a%zz", RawPath: "/a%zz"}, "", "GET /a%zz"},
		{"decoded percent", httpwire.Request{Method: "GET", Path: "/a%zz", RawPath: "/a%25zz"}, "", "GET /a%25zz"},
		{"forward scope", httpwire.Request{Method: "GET", Path: "/a"}, "origin.test:8081", "GET origin.test:8081/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Key(&tt.req, tt.scope))
		})
	}
}

func TestPolicy(t *testing.T) {
	p := NewPolicy(8, []string{"/admin/*", "/time"})

	require.True(t, p.Cacheable("GET", "/"))
	require.True(t, p.Cacheable("GET", "/items"))
	require.False(t, p.Cacheable("POST", "/items"))
	require.False(t, p.Cacheable("HEAD", "/items"))
	require.False(t, p.Cacheable("GET", "/time/"))
	require.False(t, p.Cacheable("GET", "/admin/users"))

	require.True(t, p.Storable(200, 8))
	require.False(t, p.Storable(200, 9))
	require.False(t, p.Storable(404, 1))
	require.Equal(t, DefaultMaxEntrySize, NewPolicy(0, nil).MaxEntrySize())
}

func TestNewEntry_DropsPerDeliveryHeaders(t *testing.T) {
	h := httpwire.NewHeader(
		"Content-Type", "application/json",
		"Content-Length", "2",
		"Connection", "close",
		"Transfer-Encoding", "chunked",
		"X-Cache", "MISS",
	)
	e := NewEntry(200, &h, []byte("{}"))
	require.Equal(t, []httpwire.HeaderField{{Name: "Content-Type", Value: "application/json"}}, e.Header.Fields())

	resp := e.Response()
	require.Equal(t, CacheHit, resp.Header.Get(HeaderXCache))
	require.False(t, e.Header.Has(HeaderXCache))
}

func TestCapture(t *testing.T) {
	var client bytes.Buffer
	capture := NewCapture(10)
	w := io.MultiWriter(&client, capture)

	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	body, ok := capture.Bytes()
	require.True(t, ok)
	require.Equal(t, "hello", string(body))

	_, err = w.Write([]byte("-world-and-more"))
	require.NoError(t, err)
	_, ok = capture.Bytes()
	require.False(t, ok)
	require.Equal(t, "hello-world-and-more", client.String())
}
