/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/acronis/go-wireserver/httpwire"
	"github.com/acronis/go-wireserver/log"
)

// PanicStackSize defines the size of stack part which is logged when a handler panics.
const PanicStackSize = 8192

// LocalBackend serves requests with handlers from a Registry.
type LocalBackend struct {
	registry *Registry
	logger   log.FieldLogger
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend creates a new LocalBackend. Logger can be nil.
func NewLocalBackend(registry *Registry, logger log.FieldLogger) *LocalBackend {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &LocalBackend{registry: registry, logger: logger}
}

// CacheScope returns "", local responses are keyed by method and path only.
func (b *LocalBackend) CacheScope(*httpwire.Request) string {
	return ""
}

// Dispatch runs the matched handler. Unmatched routes get 404, failing or panicking handlers get 500.
// The returned error is never nil when the handler failed, but there is always a response to send.
func (b *LocalBackend) Dispatch(ctx context.Context, req *httpwire.Request) (*Result, error) {
	h, ok := b.registry.Lookup(req.Method, req.Path)
	if !ok {
		return &Result{Response: httpwire.NewStatusResponse(404)}, nil
	}

	resp, err := b.callHandler(ctx, h, req)
	if err != nil {
		var statusErr *httpwire.StatusError
		if errors.As(err, &statusErr) && statusErr.Response != nil {
			return &Result{Response: statusErr.Response}, nil
		}
		return &Result{Response: httpwire.NewStatusResponse(500)}, err
	}
	if resp == nil {
		return &Result{Response: httpwire.NewStatusResponse(500)}, ErrNoResponse
	}
	return &Result{Response: resp}, nil
}

func (b *LocalBackend) callHandler(
	ctx context.Context, h Handler, req *httpwire.Request,
) (resp *httpwire.Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			stack := make([]byte, PanicStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			b.logger.Error(fmt.Sprintf("panic in handler: %+v", p),
				log.String("method", req.Method), log.String("path", req.Path), log.String("stack", string(stack)))
			resp, err = nil, fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return h.Handle(ctx, req)
}
