/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-prooflens/httpserver/middleware"
	"github.com/acronis/go-prooflens/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper for logging requests.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper

	// ReqType is used in the log message and in the name of the time slot added to the logging params.
	ReqType string

	Opts LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider is a function that provides a context-specific logger.
	// middleware.GetLoggerFromContext is used by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed. "all" is used if empty.
	Mode LoggingMode

	// SlowRequestThreshold makes successful requests that took longer to be logged in the "failed" mode.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that log requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that log requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	return &LoggingRoundTripper{Delegate: delegate, ReqType: reqType, Opts: opts}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return middleware.GetLoggerFromContext(ctx)
}

// RoundTrip adds logging capabilities to the HTTP transport.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	reqType := requestTypeOf(ctx, rt.ReqType)
	start := time.Now()

	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if loggingParams := middleware.GetLoggingParamsFromContext(ctx); loggingParams != nil {
		loggingParams.AddTimeSlotDurationInMs(fmt.Sprintf("external_request_%s_ms", reqType), elapsed)
	}

	logger := rt.getLogger(ctx)
	if logger == nil {
		return resp, err
	}

	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	slow := rt.Opts.SlowRequestThreshold > 0 && elapsed >= rt.Opts.SlowRequestThreshold
	if rt.Opts.Mode == LoggingModeFailed && !failed && !slow {
		return resp, err
	}

	fields := []log.Field{
		log.String("client_type", reqType),
		log.String("method", r.Method),
		log.String("url", redactedURL(r)),
		log.DurationMs("duration_ms", elapsed),
	}
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
	}
	msg := fmt.Sprintf("client http request %s %s, req type %s, time taken %.3fs", r.Method, redactedURL(r), reqType, elapsed.Seconds())
	switch {
	case err != nil:
		logger.Warn(msg, append(fields, log.Error(err))...)
	case failed, slow:
		logger.Warn(msg, fields...)
	default:
		logger.Info(msg, fields...)
	}
	return resp, err
}

// redactedURL returns the request URL without the query string which may contain credentials.
func redactedURL(r *http.Request) string {
	u := *r.URL
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.User = nil
	return u.String()
}
