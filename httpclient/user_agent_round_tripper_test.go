/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserAgentRoundTripper_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-Echo-User-Agent", r.Header.Get("User-Agent"))
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	const rtUserAgent = "prooflens/1.0"

	tests := []struct {
		name          string
		reqUserAgent  string
		strategy      UserAgentUpdateStrategy
		wantUserAgent string
	}{
		{name: "set if empty", strategy: UserAgentUpdateStrategySetIfEmpty, wantUserAgent: rtUserAgent},
		{
			name:          "set if empty, existing is kept",
			reqUserAgent:  "curl/8.0",
			strategy:      UserAgentUpdateStrategySetIfEmpty,
			wantUserAgent: "curl/8.0",
		},
		{name: "append, empty", strategy: UserAgentUpdateStrategyAppend, wantUserAgent: rtUserAgent},
		{
			name:          "append, existing",
			reqUserAgent:  "curl/8.0",
			strategy:      UserAgentUpdateStrategyAppend,
			wantUserAgent: "curl/8.0 " + rtUserAgent,
		},
		{
			name:          "prepend, existing",
			reqUserAgent:  "curl/8.0",
			strategy:      UserAgentUpdateStrategyPrepend,
			wantUserAgent: rtUserAgent + " curl/8.0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, server.URL+"/", nil)
			require.NoError(t, err)
			if tt.reqUserAgent != "" {
				req.Header.Set("User-Agent", tt.reqUserAgent)
			}
			client := http.Client{Transport: NewUserAgentRoundTripperWithStrategy(http.DefaultTransport, rtUserAgent, tt.strategy)}
			resp, err := client.Do(req)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())
			require.Equal(t, tt.wantUserAgent, resp.Header.Get("X-Echo-User-Agent"))
		})
	}
}
