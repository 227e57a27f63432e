/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"

	"github.com/acronis/go-wireserver/log"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyLogger
)

// NewContextWithRequestID creates a new context with the request id.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext extracts the request id from the context.
func GetRequestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(ctxKeyRequestID).(string)
	return value
}

// NewContextWithLogger creates a new context with the connection logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext extracts the connection logger from the context.
// A disabled logger is returned when there is none.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	if value, ok := ctx.Value(ctxKeyLogger).(log.FieldLogger); ok {
		return value
	}
	return log.NewDisabledLogger()
}
