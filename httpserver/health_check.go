/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-prooflens/httpserver/middleware"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/restapi"
)

// StatusClientClosedRequest is the non-standard status (introduced by Nginx) for requests the client abandoned.
const StatusClientClosedRequest = 499

// HealthCheckStatus is a resulting status of a single component.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps component names to their statuses.
type HealthCheckResult = map[string]HealthCheckStatus

// HealthCheck reports statuses of the service's components.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

// HealthCheckResponse is the body of the /healthz response.
type HealthCheckResponse struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler implements http.Handler and does health-check of a service.
// It answers 503 if at least one component is unhealthy.
type HealthCheckHandler struct {
	check HealthCheck
}

// NewHealthCheckHandler creates a new HealthCheckHandler. With nil check the service is always healthy.
func NewHealthCheckHandler(check HealthCheck) *HealthCheckHandler {
	if check == nil {
		check = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{check: check}
}

// ServeHTTP serves health-check HTTP request.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	result, err := h.check(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		if logger != nil {
			logger.Error("health check failed", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp := HealthCheckResponse{Components: make(map[string]bool, len(result))}
	status := http.StatusOK
	for name, componentStatus := range result {
		resp.Components[name] = componentStatus == HealthCheckStatusOK
		if componentStatus != HealthCheckStatusOK {
			status = http.StatusServiceUnavailable
		}
	}
	restapi.RespondCodeAndJSON(rw, status, resp, logger)
}
