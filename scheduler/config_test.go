/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-prooflens/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgData     string
		expectedCfg func() *Config
		expectedErr string
	}{
		{
			name:        "defaults",
			cfgData:     "",
			expectedCfg: NewDefaultConfig,
		},
		{
			name: "custom values",
			cfgData: `
scheduler:
  queueCapacity: 3
  baseInterval: 1s
  minInterval: 100ms
  decayFactor: 0.5
  quotaInterval: 30s
  quotaCooldown: 5s
  waitTimeout: 1m
  maxPriority: 3
  coalesce: false
  abandonOnTimeout: false
  statsInterval: 0
`,
			expectedCfg: func() *Config {
				cfg := NewConfig()
				cfg.QueueCapacity = 3
				cfg.BaseInterval = time.Second
				cfg.MinInterval = 100 * time.Millisecond
				cfg.DecayFactor = 0.5
				cfg.QuotaInterval = 30 * time.Second
				cfg.QuotaCooldown = 5 * time.Second
				cfg.WaitTimeout = time.Minute
				cfg.MaxPriority = 3
				return cfg
			},
		},
		{
			name:        "zero capacity",
			cfgData:     "scheduler:\n  queueCapacity: 0\n",
			expectedErr: "scheduler.queueCapacity: must be positive",
		},
		{
			name:        "bad decay factor",
			cfgData:     "scheduler:\n  decayFactor: 1.2\n",
			expectedErr: "scheduler.decayFactor: must be in (0, 1)",
		},
		{
			name:        "decay factor that never shrinks the interval",
			cfgData:     "scheduler:\n  decayFactor: 1\n",
			expectedErr: "scheduler.decayFactor: must be in (0, 1)",
		},
		{
			name:        "negative interval",
			cfgData:     "scheduler:\n  quotaCooldown: -1s\n",
			expectedErr: "scheduler.quotaCooldown: cannot be negative",
		},
		{
			name:        "zero wait timeout",
			cfgData:     "scheduler:\n  waitTimeout: 0s\n",
			expectedErr: "scheduler.waitTimeout: must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
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
