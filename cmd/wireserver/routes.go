/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"strconv"
	"time"

	"github.com/acronis/go-wireserver/dispatch"
	"github.com/acronis/go-wireserver/httpwire"
)

const welcomeText = "Welcome to wireserver!"

// registerDemoRoutes registers the routes served in the local mode.
func registerDemoRoutes(reg *dispatch.Registry, now func() time.Time) {
	reg.HandleFunc("GET", "/", func(context.Context, *httpwire.Request) (*httpwire.Response, error) {
		return httpwire.NewTextResponse(200, welcomeText), nil
	})
	reg.HandleFunc("GET", "/healthz", func(context.Context, *httpwire.Request) (*httpwire.Response, error) {
		return httpwire.NewTextResponse(200, "ok"), nil
	})
	reg.HandleFunc("GET", "/time", func(context.Context, *httpwire.Request) (*httpwire.Response, error) {
		body := `{"epochMillis":` + strconv.FormatInt(now().UnixMilli(), 10) + `}`
		return httpwire.NewResponse(200, "application/json", []byte(body)), nil
	})
	reg.HandleFunc("POST", "/echo", func(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
		return httpwire.NewResponse(200, "application/octet-stream", req.Body), nil
	})
}
