/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wireserver/dispatch"
	"github.com/acronis/go-wireserver/httpwire"
)

func TestDemoRoutes(t *testing.T) {
	reg := dispatch.NewRegistry()
	registerDemoRoutes(reg, func() time.Time { return time.UnixMilli(1700000000123) })
	require.Equal(t, []string{"GET /", "GET /healthz", "GET /time", "POST /echo"}, reg.Routes())

	backend := dispatch.NewLocalBackend(reg, nil)
	tests := []struct {
		name            string
		req             *httpwire.Request
		wantStatus      int
		wantContentType string
		wantBody        string
	}{
		{
			name:            "welcome",
			req:             &httpwire.Request{Method: "GET", Path: "/"},
			wantStatus:      200,
			wantContentType: "text/plain; charset=utf-8",
			wantBody:        welcomeText,
		},
		{
			name:            "health",
			req:             &httpwire.Request{Method: "GET", Path: "/healthz"},
			wantStatus:      200,
			wantContentType: "text/plain; charset=utf-8",
			wantBody:        "ok",
		},
		{
			name:            "time",
			req:             &httpwire.Request{Method: "GET", Path: "/time"},
			wantStatus:      200,
			wantContentType: "application/json",
			wantBody:        `{"epochMillis":1700000000123}`,
		},
		{
			name:            "echo",
			req:             &httpwire.Request{Method: "POST", Path: "/echo", Body: []byte("hello")},
			wantStatus:      200,
			wantContentType: "application/octet-stream",
			wantBody:        "hello",
		},
		{
			name:            "echo with GET",
			req:             &httpwire.Request{Method: "GET", Path: "/echo"},
			wantStatus:      404,
			wantContentType: "text/plain; charset=utf-8",
			wantBody:        "Not Found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := backend.Dispatch(context.Background(), tt.req)
			require.NoError(t, err)
			require.NotNil(t, res.Response)
			require.Equal(t, tt.wantStatus, res.Response.Status)
			require.Equal(t, tt.wantContentType, res.Response.Header.Get("Content-Type"))
			require.Equal(t, tt.wantBody, string(res.Response.Body))
		})
	}
}
