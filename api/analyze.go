/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/acronis/go-prooflens/httpserver"
	"github.com/acronis/go-prooflens/httpserver/middleware"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/restapi"
	"github.com/acronis/go-prooflens/scheduler"
)

// ErrorDomain is the domain of all errors returned by the API.
const ErrorDomain = "ProofLens"

// Error codes.
const (
	ErrCodeInvalidInput    = "invalidInput"
	ErrCodeOverloaded      = "overloaded"
	ErrCodeTimeout         = "timeout"
	ErrCodeQuotaExceeded   = "quotaExceeded"
	ErrCodeDownstreamError = "downstreamError"
	ErrCodeServiceStopping = "serviceStopping"
)

// Error messages.
const (
	ErrMessageOverloaded      = "Server is busy. Please try again in a moment."
	ErrMessageTimeout         = "The analysis is taking too long. Please try again later."
	ErrMessageQuotaExceeded   = "The analysis quota is exhausted. Please try again later."
	ErrMessageDownstreamError = "The analysis service failed to process the request."
	ErrMessageServiceStopping = "The service is shutting down."
)

// AnalysisWaitTimeSlot is the name of the time slot with the time a request spent waiting for its analysis.
const AnalysisWaitTimeSlot = "analysis_wait_ms"

// Submitter admits prompts for analysis and waits for the result.
// It is implemented by *scheduler.Scheduler.
type Submitter interface {
	Submit(ctx context.Context, req scheduler.Request) (scheduler.Response, error)
}

// AnalyzeRequest is the body of the analyze request.
type AnalyzeRequest struct {
	Prompt   string `json:"prompt"`
	Priority *int   `json:"priority,omitempty"`
}

// AnalyzeResponse is the body of the successful analyze response.
type AnalyzeResponse struct {
	Result string `json:"result"`
	Cached bool   `json:"cached"`
}

// AnalyzeHandler serves the analyze requests.
type AnalyzeHandler struct {
	submitter Submitter
	logger    log.FieldLogger
}

var _ http.Handler = (*AnalyzeHandler)(nil)

// NewAnalyzeHandler creates a new AnalyzeHandler.
// The logger is used only when there is no request-scoped logger in the context.
func NewAnalyzeHandler(submitter Submitter, logger log.FieldLogger) *AnalyzeHandler {
	return &AnalyzeHandler{submitter: submitter, logger: logger}
}

func (h *AnalyzeHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = h.logger
	}

	var req AnalyzeRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		var reqErr *restapi.MalformedRequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusBadRequest {
			reqErr.ErrCode = ErrCodeInvalidInput
		}
		restapi.RespondMalformedRequestOrInternalError(rw, ErrorDomain, err, logger)
		return
	}

	startTime := time.Now()
	resp, err := h.submitter.Submit(r.Context(), scheduler.Request{Prompt: req.Prompt, Priority: req.Priority})
	if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
		if resp.TaskID != "" {
			lp.ExtendFields(log.String("task_id", resp.TaskID))
			lp.AddTimeSlotDurationInMs(AnalysisWaitTimeSlot, time.Since(startTime))
		}
		if err == nil {
			lp.ExtendFields(log.Bool("cached", resp.Cached))
		}
	}
	if err != nil {
		respondSubmitError(rw, r, err, logger)
		return
	}
	restapi.RespondJSON(rw, AnalyzeResponse{Result: resp.Result, Cached: resp.Cached}, logger)
}

func respondSubmitError(rw http.ResponseWriter, r *http.Request, err error, logger log.FieldLogger) {
	var status int
	var apiErr *restapi.Error
	switch {
	case errors.Is(err, scheduler.ErrInvalidInput):
		status, apiErr = http.StatusBadRequest, restapi.NewError(ErrorDomain, ErrCodeInvalidInput, err.Error())
	case errors.Is(err, scheduler.ErrOverload):
		status, apiErr = http.StatusServiceUnavailable, restapi.NewError(ErrorDomain, ErrCodeOverloaded, ErrMessageOverloaded)
	case errors.Is(err, scheduler.ErrQuotaExceeded):
		status, apiErr = http.StatusTooManyRequests, restapi.NewError(ErrorDomain, ErrCodeQuotaExceeded, ErrMessageQuotaExceeded)
	case errors.Is(err, scheduler.ErrTimeout):
		status, apiErr = http.StatusGatewayTimeout, restapi.NewError(ErrorDomain, ErrCodeTimeout, ErrMessageTimeout)
	case errors.Is(err, scheduler.ErrDownstream):
		if logger != nil {
			logger.Warn("analysis failed in downstream", log.Error(err))
		}
		status, apiErr = http.StatusBadGateway, restapi.NewError(ErrorDomain, ErrCodeDownstreamError, ErrMessageDownstreamError)
	case errors.Is(err, scheduler.ErrStopped):
		status, apiErr = http.StatusServiceUnavailable, restapi.NewError(ErrorDomain, ErrCodeServiceStopping, ErrMessageServiceStopping)
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		if logger != nil {
			logger.Warn("client closed the request before the analysis was ready")
		}
		rw.WriteHeader(httpserver.StatusClientClosedRequest)
		return
	default:
		if logger != nil {
			logger.Error("analysis failed", log.Error(err))
		}
		restapi.RespondInternalError(rw, ErrorDomain, logger)
		return
	}
	restapi.RespondError(rw, status, apiErr, logger)
}
