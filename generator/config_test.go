/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package generator

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-prooflens/config"
	"github.com/acronis/go-prooflens/httpclient"
)

func TestConfig(t *testing.T) {
	t.Setenv(APIKeyEnvVar, "")

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
downstream:
  provider: Echo
  apiKey: from-file
  baseURL: http://127.0.0.1:8080
  model: gemini-2.5-pro
  echoLatency: 250ms
  timeout: 20s
  generation:
    temperature: 0.3
    maxOutputTokens: 1024
    topK: 40
  rateLimits:
    enabled: true
    limit: 1
`,
			expectedCfg: func() *Config {
				temperature := 0.3
				cfg := NewDefaultConfig()
				cfg.Provider = ProviderEcho
				cfg.APIKey = "from-file"
				cfg.BaseURL = "http://127.0.0.1:8080"
				cfg.Model = "gemini-2.5-pro"
				cfg.EchoLatency = 250 * time.Millisecond
				cfg.Generation = GenerationConfig{Temperature: &temperature, MaxOutputTokens: 1024, TopK: 40}
				cfg.Client.Timeout = 20 * time.Second
				cfg.Client.RateLimits = httpclient.RateLimitConfig{Enabled: true, Limit: 1, Burst: 1}
				return cfg
			},
		},
		{
			name:    "api key from environment overrides the file",
			cfgData: "downstream:\n  apiKey: from-file\n",
			env:     map[string]string{APIKeyEnvVar: "from-env"},
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.APIKey = "from-env"
				return cfg
			},
		},
		{
			name:        "unknown provider",
			cfgData:     "downstream:\n  provider: openai\n",
			expectedErr: `downstream.provider: unknown value "openai", should be one of [gemini echo]`,
		},
		{
			name:        "relative base URL",
			cfgData:     "downstream:\n  baseURL: /v1beta\n",
			expectedErr: "downstream.baseURL: must be an absolute URL",
		},
		{
			name:        "empty model",
			cfgData:     "downstream:\n  model: \"\"\n",
			expectedErr: "downstream.model: cannot be empty",
		},
		{
			name:        "negative topK",
			cfgData:     "downstream:\n  generation:\n    topK: -1\n",
			expectedErr: "downstream.generation.topK: cannot be negative",
		},
		{
			name:        "invalid client section",
			cfgData:     "downstream:\n  retries:\n    maxAttempts: -1\n",
			expectedErr: "downstream.retries.maxAttempts: cannot be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			if tt.expectedErr != "" {
				require.EqualError(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg(), cfg)
		})
	}
}
