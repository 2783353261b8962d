/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-prooflens/testutil"
)

func TestHttpRequestMetricsHandler_ServeHTTP(t *testing.T) {
	makeLabels := func(method, routePattern, uaType string, statusCode int) prometheus.Labels {
		return prometheus.Labels{
			httpRequestMetricsLabelMethod:        method,
			httpRequestMetricsLabelRoutePattern:  routePattern,
			httpRequestMetricsLabelUserAgentType: uaType,
			httpRequestMetricsLabelStatusCode:    strconv.Itoa(statusCode),
		}
	}

	newRouter := func(collector *HTTPRequestMetricsCollector, opts HTTPRequestMetricsOpts) http.Handler {
		router := chi.NewRouter()
		router.Use(HTTPRequestMetricsWithOpts(collector, GetChiRoutePattern, opts))
		router.Post("/api/prooflens/v1/analyze", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusServiceUnavailable)
		})
		router.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusOK)
		})
		router.Get("/items/{id}", func(rw http.ResponseWriter, r *http.Request) {
			_, _ = rw.Write([]byte("ok"))
		})
		return router
	}

	tests := []struct {
		name              string
		method            string
		url               string
		userAgent         string
		reqsNum           int
		excludedEndpoints []string
		wantLabels        prometheus.Labels
		wantCount         int
	}{
		{
			name:       "POST analysis request, http client",
			method:     http.MethodPost,
			url:        "/api/prooflens/v1/analyze",
			userAgent:  "curl/8.0",
			reqsNum:    3,
			wantLabels: makeLabels(http.MethodPost, "/api/prooflens/v1/analyze", userAgentTypeHTTPClient, http.StatusServiceUnavailable),
			wantCount:  3,
		},
		{
			name:       "GET request with url param, browser",
			method:     http.MethodGet,
			url:        "/items/42",
			userAgent:  "Mozilla/5.0 (X11; Linux x86_64)",
			reqsNum:    2,
			wantLabels: makeLabels(http.MethodGet, "/items/{id}", userAgentTypeBrowser, http.StatusOK),
			wantCount:  2,
		},
		{
			name:              "excluded endpoint",
			method:            http.MethodGet,
			url:               "/healthz",
			reqsNum:           4,
			excludedEndpoints: []string{"/healthz"},
			wantLabels:        makeLabels(http.MethodGet, "/healthz", userAgentTypeHTTPClient, http.StatusOK),
			wantCount:         0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewHTTPRequestMetricsCollector()
			h := newRouter(collector, HTTPRequestMetricsOpts{ExcludedEndpoints: tt.excludedEndpoints})
			for i := 0; i < tt.reqsNum; i++ {
				req := httptest.NewRequest(tt.method, tt.url, nil)
				req.Header.Set("User-Agent", tt.userAgent)
				h.ServeHTTP(httptest.NewRecorder(), req)
			}

			hist := collector.Durations.With(tt.wantLabels).(prometheus.Histogram)
			testutil.RequireSamplesCountInHistogram(t, hist, tt.wantCount)
		})
	}
}

func TestHttpRequestMetricsHandler_ServeHTTP_Panic(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector()
	router := chi.NewRouter()
	router.Use(HTTPRequestMetrics(collector, GetChiRoutePattern))
	router.Get("/boom", func(rw http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	require.Panics(t, func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	})

	labels := prometheus.Labels{
		httpRequestMetricsLabelMethod:        http.MethodGet,
		httpRequestMetricsLabelRoutePattern:  "/boom",
		httpRequestMetricsLabelUserAgentType: userAgentTypeHTTPClient,
		httpRequestMetricsLabelStatusCode:    strconv.Itoa(http.StatusInternalServerError),
	}
	testutil.RequireSamplesCountInHistogram(t, collector.Durations.With(labels).(prometheus.Histogram), 1)
}

func TestHttpRequestMetricsHandler_NilRoutePatternGetter(t *testing.T) {
	require.Panics(t, func() {
		HTTPRequestMetrics(NewHTTPRequestMetricsCollector(), nil)
	})
}
