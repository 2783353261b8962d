/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/acronis/go-prooflens/internal/ratelimit"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/restapi"
)

// DefaultRateLimitMaxKeys is a default value of maximum keys number for the RateLimit middleware.
const DefaultRateLimitMaxKeys = 10000

// RateLimitErrCode is an error code that is used in a response body
// if the request is rejected by the middleware that limits the rate of HTTP requests.
const RateLimitErrCode = "tooManyRequests"

// RateLimitLogFieldKey it is the name of the logged field that contains a key for the requests rate limiter.
const RateLimitLogFieldKey = "rate_limit_key"

// RateLimitAlg represents a type for specifying rate-limiting algorithm.
type RateLimitAlg = ratelimit.Alg

// Supported rate-limiting algorithms.
const (
	RateLimitAlgLeakyBucket   = ratelimit.AlgLeakyBucket
	RateLimitAlgSlidingWindow = ratelimit.AlgSlidingWindow
)

// Rate describes the frequency of requests.
type Rate = ratelimit.Rate

// RateLimitGetKeyFunc is a function that is called for getting key for rate limiting.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	Alg      RateLimitAlg
	MaxBurst int
	// GetKey splits requests into independently limited groups. All requests share one limit if nil.
	GetKey  RateLimitGetKeyFunc
	MaxKeys int
	// ResponseStatusCode is 503 by default.
	ResponseStatusCode int
	// DryRun makes the middleware only log requests that would be rejected.
	DryRun bool
}

type rateLimitHandler struct {
	next           http.Handler
	limiter        ratelimit.Limiter
	errDomain      string
	respStatusCode int
	opts           RateLimitOpts
}

// RateLimit is a middleware that limits the rate of HTTP requests.
func RateLimit(maxRate Rate, errDomain string) (func(next http.Handler) http.Handler, error) {
	return RateLimitWithOpts(maxRate, errDomain, RateLimitOpts{})
}

// RateLimitWithOpts is a configurable version of a middleware to limit the rate of HTTP requests.
func RateLimitWithOpts(maxRate Rate, errDomain string, opts RateLimitOpts) (func(next http.Handler) http.Handler, error) {
	if opts.Alg == "" {
		opts.Alg = RateLimitAlgLeakyBucket
	}
	maxKeys := 0
	if opts.GetKey != nil {
		if maxKeys = opts.MaxKeys; maxKeys == 0 {
			maxKeys = DefaultRateLimitMaxKeys
		}
	}
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusServiceUnavailable
	}

	limiter, err := ratelimit.New(opts.Alg, maxRate, opts.MaxBurst, maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new rate limiter: %w", err)
	}
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:           next,
			limiter:        limiter,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			opts:           opts,
		}
	}, nil
}

// MustRateLimitWithOpts is a version of RateLimitWithOpts that panics if an error occurs.
func MustRateLimitWithOpts(maxRate Rate, errDomain string, opts RateLimitOpts) func(next http.Handler) http.Handler {
	mw, err := RateLimitWithOpts(maxRate, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromContext(r.Context())

	var key string
	if h.opts.GetKey != nil {
		var bypass bool
		var err error
		if key, bypass, err = h.opts.GetKey(r); err != nil {
			h.respondError(rw, logger, fmt.Errorf("get rate limit key: %w", err))
			return
		}
		if bypass {
			h.next.ServeHTTP(rw, r)
			return
		}
	}

	allow, retryAfter, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		h.respondError(rw, logger, fmt.Errorf("requests rate limiting: %w", err))
		return
	}
	if allow {
		h.next.ServeHTTP(rw, r)
		return
	}

	if logger != nil {
		logger = logger.With(log.String(RateLimitLogFieldKey, key), log.String(userAgentLogFieldKey, r.UserAgent()))
	}
	if h.opts.DryRun {
		if logger != nil {
			logger.Warn("too many requests, serving will be continued because of dry run mode")
		}
		h.next.ServeHTTP(rw, r)
		return
	}
	rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	restapi.RespondError(rw, h.respStatusCode, restapi.NewError(h.errDomain, RateLimitErrCode, "Too many requests."), logger)
}

func (h *rateLimitHandler) respondError(rw http.ResponseWriter, logger log.FieldLogger, err error) {
	if logger != nil {
		logger.Error(err.Error())
	}
	restapi.RespondInternalError(rw, h.errDomain, logger)
}

// GetRateLimitKeyByClientIP uses the client IP address (without port) as a rate limiting key.
func GetRateLimitKeyByClientIP(r *http.Request) (key string, bypass bool, err error) {
	if originAddr := getOriginAddr(r); originAddr != "" {
		return originAddr, false, nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, false, nil
	}
	return host, false, nil
}
