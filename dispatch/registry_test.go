/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wireserver/httpwire"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	ok := HandlerFunc(func(context.Context, *httpwire.Request) (*httpwire.Response, error) {
		return httpwire.NewTextResponse(200, "ok"), nil
	})
	reg.Handle("get", "/users/", ok)
	reg.Handle("POST", "/users", ok)

	for _, path := range []string{"/users", "/users/", "/users//"} {
		_, found := reg.Lookup("GET", path)
		require.True(t, found, path)
	}
	_, found := reg.Lookup("PUT", "/users")
	require.False(t, found)
	_, found = reg.Lookup("GET", "/users/1")
	require.False(t, found)

	require.Equal(t, []string{"GET /users", "POST /users"}, reg.Routes())
}

func TestLocalBackend_NilResponse(t *testing.T) {
	reg := NewRegistry()
	reg.HandleFunc("GET", "/", func(context.Context, *httpwire.Request) (*httpwire.Response, error) {
		return nil, nil
	})
	result, err := NewLocalBackend(reg, nil).Dispatch(context.Background(), &httpwire.Request{Method: "GET", Path: "/"})
	require.ErrorIs(t, err, ErrNoResponse)
	require.Equal(t, 500, result.Status())
}
