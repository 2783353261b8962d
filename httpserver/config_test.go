/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-prooflens/config"
	"github.com/acronis/go-prooflens/httpserver/middleware"
)

func TestConfig(t *testing.T) {
	t.Setenv(PortEnvVar, "")

	tests := []struct {
		name        string
		cfgData     string
		env         map[string]string
		expectedCfg func() *Config
		expectedErr string
	}{
		{
			name:        "defaults",
			expectedCfg: NewDefaultConfig,
		},
		{
			name: "custom values",
			cfgData: `
server:
  address: "127.0.0.1:8080"
  timeouts:
    write: 1h
    read: 7m
    readHeader: 1m
    idle: 20m
    shutdown: 30s
  limits:
    maxBodySize: 64K
  log:
    requestStart: true
    requestHeaders: [X-Forwarded-For]
    excludedEndpoints: [/]
    slowRequestThreshold: 2s
  tls:
    enabled: true
    cert: /test/cert.pem
    key: /test/key.pem
  cors:
    allowedOrigins: [https://prooflens.example.com]
    allowCredentials: true
    maxAge: 1m
  rateLimit:
    enabled: true
    alg: SlidingWindow
    count: 10
    duration: 1s
    burst: 0
    dryRun: true
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Address = "127.0.0.1:8080"
				cfg.Timeouts = TimeoutsConfig{
					Write: time.Hour, Read: 7 * time.Minute, ReadHeader: time.Minute, Idle: 20 * time.Minute, Shutdown: 30 * time.Second,
				}
				cfg.Limits.MaxBodySizeBytes = 64 * 1024
				cfg.Log = LogConfig{
					RequestStart:         true,
					RequestHeaders:       []string{"X-Forwarded-For"},
					ExcludedEndpoints:    []string{"/"},
					SlowRequestThreshold: 2 * time.Second,
				}
				cfg.TLS = TLSConfig{Enabled: true, Certificate: "/test/cert.pem", Key: "/test/key.pem"}
				cfg.CORS.AllowedOrigins = []string{"https://prooflens.example.com"}
				cfg.CORS.AllowCredentials = true
				cfg.CORS.MaxAge = time.Minute
				cfg.RateLimit = RateLimitConfig{
					Enabled:  true,
					Alg:      middleware.RateLimitAlgSlidingWindow,
					Count:    10,
					Duration: time.Second,
					MaxKeys:  middleware.DefaultRateLimitMaxKeys,
					DryRun:   true,
				}
				return cfg
			},
		},
		{
			name: "port from environment",
			env:  map[string]string{PortEnvVar: "8081"},
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Address = ":8081"
				return cfg
			},
		},
		{
			name:    "prefixed variable wins over port",
			env:     map[string]string{PortEnvVar: "8081", "PROOFLENS_SERVER_ADDRESS": "127.0.0.1:9090"},
			cfgData: "",
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Address = "127.0.0.1:9090"
				return cfg
			},
		},
		{
			name:        "empty address",
			cfgData:     "server:\n  address: \"\"\n",
			expectedErr: "server.address: cannot be empty",
		},
		{
			name:        "tls without key",
			cfgData:     "server:\n  tls:\n    enabled: true\n    cert: /test/cert.pem\n",
			expectedErr: "server.tls.key: both cert and key should be set",
		},
		{
			name:        "negative timeout",
			cfgData:     "server:\n  timeouts:\n    idle: -1s\n",
			expectedErr: "server.timeouts.idle: cannot be negative",
		},
		{
			name:        "cors without origins",
			cfgData:     "server:\n  cors:\n    allowedOrigins: []\n",
			expectedErr: "server.cors.allowedOrigins: cannot be empty when CORS is enabled",
		},
		{
			name:        "unknown rate limit algorithm",
			cfgData:     "server:\n  rateLimit:\n    alg: tokenBucket\n",
			expectedErr: `server.rateLimit.alg: unknown value "tokenBucket", should be one of [leakyBucket slidingWindow]`,
		},
		{
			name:        "zero rate limit count",
			cfgData:     "server:\n  rateLimit:\n    count: 0\n",
			expectedErr: "server.rateLimit.count: must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := NewConfig()
			err := config.NewDefaultLoader("prooflens").LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			if tt.expectedErr != "" {
				require.EqualError(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg(), cfg)
		})
	}
}

func TestConfig_InvalidBodySize(t *testing.T) {
	cfg := NewConfig()
	err := config.NewDefaultLoader("prooflens").LoadFromReader(
		bytes.NewBufferString("server:\n  limits:\n    maxBodySize: big\n"), config.DataTypeYAML, cfg)
	require.ErrorContains(t, err, "server.limits.maxBodySize: ")
}

func TestCORSConfig_Opts(t *testing.T) {
	opts := NewDefaultConfig().CORS.Opts()
	require.Equal(t, []string{"*"}, opts.AllowedOrigins)
	require.Equal(t, 600, opts.MaxAgeSeconds)
}
