/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-prooflens/log/logtest"
	"github.com/acronis/go-prooflens/testutil"
)

func TestRateLimitHandler_ServeHTTP(t *testing.T) {
	const errDomain = "ProofLens"

	makeNext := func() (http.Handler, *atomic.Int32) {
		served := atomic.NewInt32(0)
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			served.Inc()
			rw.WriteHeader(http.StatusOK)
		}), served
	}

	send := func(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/prooflens/v1/analyze", nil)
		if remoteAddr != "" {
			req.RemoteAddr = remoteAddr
		}
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp
	}

	requireRejected := func(t *testing.T, resp *httptest.ResponseRecorder, wantCode int) {
		t.Helper()
		testutil.RequireErrorInRecorder(t, resp, wantCode, errDomain, RateLimitErrCode)
		retryAfter, err := strconv.Atoi(resp.Header().Get("Retry-After"))
		require.NoError(t, err)
		require.GreaterOrEqual(t, retryAfter, 1)
	}

	for _, alg := range []RateLimitAlg{RateLimitAlgLeakyBucket, RateLimitAlgSlidingWindow} {
		t.Run(string(alg)+", single key", func(t *testing.T) {
			next, served := makeNext()
			mw, err := RateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, errDomain, RateLimitOpts{Alg: alg})
			require.NoError(t, err)
			h := mw(next)

			require.Equal(t, http.StatusOK, send(h, "").Code)
			requireRejected(t, send(h, ""), http.StatusServiceUnavailable)
			require.Equal(t, int32(1), served.Load())
		})

		t.Run(string(alg)+", key by client IP", func(t *testing.T) {
			next, served := makeNext()
			mw, err := RateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, errDomain, RateLimitOpts{
				Alg:    alg,
				GetKey: GetRateLimitKeyByClientIP,
			})
			require.NoError(t, err)
			h := mw(next)

			require.Equal(t, http.StatusOK, send(h, "10.0.0.1:1111").Code)
			require.Equal(t, http.StatusOK, send(h, "10.0.0.2:2222").Code)
			requireRejected(t, send(h, "10.0.0.1:3333"), http.StatusServiceUnavailable)
			require.Equal(t, int32(2), served.Load())
		})
	}

	t.Run("leaky bucket with burst", func(t *testing.T) {
		next, served := makeNext()
		mw, err := RateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, errDomain, RateLimitOpts{MaxBurst: 2})
		require.NoError(t, err)
		h := mw(next)

		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, send(h, "").Code)
		}
		requireRejected(t, send(h, ""), http.StatusServiceUnavailable)
		require.Equal(t, int32(3), served.Load())
	})

	t.Run("custom response status code", func(t *testing.T) {
		next, _ := makeNext()
		h := MustRateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, errDomain, RateLimitOpts{
			ResponseStatusCode: http.StatusTooManyRequests,
		})(next)

		require.Equal(t, http.StatusOK, send(h, "").Code)
		requireRejected(t, send(h, ""), http.StatusTooManyRequests)
	})

	t.Run("dry run", func(t *testing.T) {
		next, served := makeNext()
		logger := logtest.NewRecorder()
		h := MustRateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, errDomain, RateLimitOpts{DryRun: true})(next)
		h = withLogger(h, logger)

		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, send(h, "").Code)
		}
		require.Equal(t, int32(3), served.Load())
		require.Len(t, logger.FindAllEntries(func(e logtest.RecordedEntry) bool {
			return e.Text == "too many requests, serving will be continued because of dry run mode"
		}), 2)
	})

	t.Run("bypass", func(t *testing.T) {
		next, served := makeNext()
		h := MustRateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, errDomain, RateLimitOpts{
			GetKey: func(r *http.Request) (string, bool, error) { return "", true, nil },
		})(next)

		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, send(h, "").Code)
		}
		require.Equal(t, int32(3), served.Load())
	})

	t.Run("error on getting key", func(t *testing.T) {
		next, served := makeNext()
		h := MustRateLimitWithOpts(Rate{Count: 1, Duration: time.Minute}, errDomain, RateLimitOpts{
			GetKey: func(r *http.Request) (string, bool, error) { return "", false, errors.New("no key") },
		})(next)

		testutil.RequireErrorInRecorder(t, send(h, ""), http.StatusInternalServerError, errDomain, "internalError")
		require.Equal(t, int32(0), served.Load())
	})

	t.Run("invalid rate", func(t *testing.T) {
		_, err := RateLimit(Rate{Count: 0, Duration: time.Second}, errDomain)
		require.Error(t, err)
	})
}

func TestGetRateLimitKeyByClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	key, bypass, err := GetRateLimitKeyByClientIP(req)
	require.NoError(t, err)
	require.False(t, bypass)
	require.Equal(t, "192.0.2.10", key)

	req.Header.Set(headerForwardedFor, "198.51.100.7, 192.0.2.10")
	key, _, err = GetRateLimitKeyByClientIP(req)
	require.NoError(t, err)
	require.Equal(t, "198.51.100.7", key)
}

func withLogger(next http.Handler, logger *logtest.Recorder) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(rw, r.WithContext(NewContextWithLogger(r.Context(), logger)))
	})
}
