/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"sort"
	"strings"

	"github.com/acronis/go-wireserver/httpwire"
	"github.com/acronis/go-wireserver/respcache"
)

// Handler serves a request routed by the Registry.
// Returning *httpwire.StatusError sends its response, any other error results in 500.
// The returned response is never modified, so it may be shared between calls.
type Handler interface {
	Handle(ctx context.Context, req *httpwire.Request) (*httpwire.Response, error)
}

// HandlerFunc is an adapter to allow the use of ordinary functions as handlers.
type HandlerFunc func(ctx context.Context, req *httpwire.Request) (*httpwire.Response, error)

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	return f(ctx, req)
}

// Registry maps "METHOD PATH" to handlers. Paths are normalized the same way as in cache keys.
// It must be populated before serving starts and is read-only afterwards.
type Registry struct {
	routes map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]Handler)}
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + respcache.NormalizePath(path)
}

// Handle registers the handler for the method and path, replacing a previous one.
func (r *Registry) Handle(method, path string, h Handler) {
	r.routes[routeKey(method, path)] = h
}

// HandleFunc registers the function as a handler.
func (r *Registry) HandleFunc(method, path string, f func(ctx context.Context, req *httpwire.Request) (*httpwire.Response, error)) {
	r.Handle(method, path, HandlerFunc(f))
}

// Lookup returns the handler registered for the method and path.
func (r *Registry) Lookup(method, path string) (Handler, bool) {
	h, ok := r.routes[routeKey(method, path)]
	return h, ok
}

// Routes returns registered "METHOD PATH" keys in sorted order.
func (r *Registry) Routes() []string {
	keys := make([]string, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
