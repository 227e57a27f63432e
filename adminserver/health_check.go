/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package adminserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-wireserver/log"
)

// StatusClientClosedRequest is the nginx status for a client that went away before the response.
const StatusClientClosedRequest = 499

// HealthCheckStatus is the state of one component.
type HealthCheckStatus int

// Health-check statuses. A degraded component still serves, so it does not fail the check.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusDegraded
	HealthCheckStatusFail
)

func (s HealthCheckStatus) String() string {
	switch s {
	case HealthCheckStatusOK:
		return "ok"
	case HealthCheckStatusDegraded:
		return "degraded"
	}
	return "fail"
}

// HealthCheckResult maps component names ("wire_server", "worker_pool") to their statuses.
type HealthCheckResult = map[string]HealthCheckStatus

// HealthCheck returns statuses of the wireserver components.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// HealthCheckHandler serves GET /healthz.
// The response is 503 if any component fails and 200 otherwise. The overall status is the worst one.
type HealthCheckHandler struct {
	healthCheckFn HealthCheck
	logger        log.FieldLogger
}

// NewHealthCheckHandler creates a new HealthCheckHandler.
// A nil fn reports a healthy service without components.
func NewHealthCheckHandler(fn HealthCheck, logger log.FieldLogger) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{healthCheckFn: fn, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	result, err := h.healthCheckFn(r.Context())
	if err != nil {
		h.logger.Error("error while checking health", log.Error(err))
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	overall := HealthCheckStatusOK
	respData := healthCheckResponseData{Components: make(map[string]string, len(result))}
	for name, status := range result {
		respData.Components[name] = status.String()
		if status > overall {
			overall = status
		}
	}
	respData.Status = overall.String()

	respStatus := http.StatusOK
	if overall == HealthCheckStatusFail {
		respStatus = http.StatusServiceUnavailable
		h.logger.Warn("health check failed", log.Any("components", respData.Components))
	}
	respondCodeAndJSON(rw, respStatus, respData, h.logger)
}
