/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides an HTTP client for calling the downstream generation service.
// The transport is a chain of round trippers (logging, metrics, rate limiting, API key, User-Agent, request ID)
// that are enabled by Config.
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/acronis/go-prooflens/log"
)

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	UserAgent string

	// RequestType identifies the downstream service in logs and metrics (e.g. "gemini").
	RequestType string

	// Delegate is the innermost RoundTripper. A clone of http.DefaultTransport is used by default.
	Delegate http.RoundTripper

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// APIKeyProvider and APIKeyHeader enable the API key round tripper when both are set.
	APIKeyProvider APIKeyProvider
	APIKeyHeader   string

	// MetricsCollector is used when metrics are enabled in the config.
	MetricsCollector MetricsCollector
}

// New creates an HTTP client with the round trippers enabled by the config.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts creates an HTTP client with the round trippers enabled by the config and the given options.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Logger.Enabled {
		logOpts := cfg.Logger.TransportOpts()
		logOpts.LoggerProvider = opts.LoggerProvider
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.RequestType, logOpts)
	}

	if cfg.Metrics.Enabled && opts.MetricsCollector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.MetricsCollector,
		})
	}

	if cfg.RateLimits.Enabled {
		var err error
		if delegate, err = NewRateLimitingRoundTripperWithOpts(
			delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts(),
		); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if opts.APIKeyProvider != nil && opts.APIKeyHeader != "" {
		delegate = NewAPIKeyRoundTripper(delegate, opts.APIKeyHeader, opts.APIKeyProvider)
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	return &http.Client{Transport: delegate, Timeout: cfg.Timeout}, nil
}

// MustWithOpts is like NewWithOpts but panics if any error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
