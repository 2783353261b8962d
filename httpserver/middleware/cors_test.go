/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCORS(t *testing.T) {
	nextCalled := 0
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		nextCalled++
		rw.WriteHeader(http.StatusOK)
	})
	h := CORS(CORSOpts{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})(next)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)

		require.Equal(t, "https://app.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, 0, nextCalled)
	})

	t.Run("actual request from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
		req.Header.Set("Origin", "https://app.example.com")
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "https://app.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("request from unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
		req.Header.Set("Origin", "https://evil.example.org")
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)

		require.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
	})
}
