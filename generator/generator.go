/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package generator provides clients of the downstream text-generation service.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/acronis/go-prooflens/httpclient"
	"github.com/acronis/go-prooflens/log"
)

// Generator produces an analysis for a prompt.
//
// Errors are classified: ErrQuotaExceeded (the downstream rate limit is hit, the call may be repeated later),
// *TransientError (temporary failure that survived client retries) and *FatalError (repeating won't help).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc is an adapter to allow the use of ordinary functions as Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate is a part of Generator interface.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrQuotaExceeded is returned when the downstream service rejects the call because of its rate limit.
var ErrQuotaExceeded = errors.New("downstream quota exceeded")

// TransientError is a temporary failure (5xx, network error).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %v", e.Err)
}

// Unwrap returns the cause.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError is a failure that repeating the same call won't fix (bad request, blocked content, no credentials).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error: %v", e.Err)
}

// Unwrap returns the cause.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsQuotaExceeded reports whether err signals the downstream rate limit.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsTransient reports whether err is worth retrying right away.
func IsTransient(err error) bool {
	var transientErr *TransientError
	return errors.As(err, &transientErr)
}

// Opts represents options for creating a Generator.
type Opts struct {
	UserAgent string

	// RequestIDProvider returns the identifier sent in the X-Request-ID header of downstream calls.
	RequestIDProvider func(ctx context.Context) string

	// MetricsCollector observes durations of downstream calls. Client metrics are disabled if nil.
	MetricsCollector httpclient.MetricsCollector

	// Transport is the innermost round tripper of the HTTP client. Used in tests.
	Transport http.RoundTripper
}

// New creates the Generator of the configured provider.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (Generator, error) {
	switch cfg.Provider {
	case ProviderEcho:
		logger.Info("echo generator is used, downstream service is not called")
		return EchoGenerator{Latency: cfg.EchoLatency}, nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			logger.Warn(fmt.Sprintf("API key is not configured (set %s), every analysis will fail", APIKeyEnvVar))
		}
		client, err := NewGeminiClient(cfg, logger, opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}
