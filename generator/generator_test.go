/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package generator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-prooflens/log/logtest"
)

func TestErrorClassification(t *testing.T) {
	cause := errors.New("boom")

	require.True(t, IsQuotaExceeded(fmt.Errorf("%w: status 429", ErrQuotaExceeded)))
	require.False(t, IsQuotaExceeded(&TransientError{Err: cause}))

	require.True(t, IsTransient(fmt.Errorf("attempt 3: %w", &TransientError{Err: cause})))
	require.False(t, IsTransient(&FatalError{Err: cause}))

	require.ErrorIs(t, &FatalError{Err: cause}, cause)
	require.EqualError(t, &TransientError{Err: cause}, "transient error: boom")
	require.EqualError(t, &FatalError{Err: cause}, "fatal error: boom")
}

func TestNew(t *testing.T) {
	t.Run("echo", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Provider = ProviderEcho
		gen, err := New(cfg, logtest.NewLogger(), Opts{})
		require.NoError(t, err)
		require.IsType(t, EchoGenerator{}, gen)
	})

	t.Run("gemini without API key", func(t *testing.T) {
		logger := logtest.NewRecorder()
		gen, err := New(NewDefaultConfig(), logger, Opts{})
		require.NoError(t, err)
		require.IsType(t, &GeminiClient{}, gen)
		require.Len(t, logger.Entries(), 1)
		require.Contains(t, logger.Entries()[0].Text, "API key is not configured (set GOOGLE_API_KEY)")
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Provider = "openai"
		_, err := New(cfg, logtest.NewLogger(), Opts{})
		require.EqualError(t, err, `unknown generator provider "openai"`)
	})
}

func TestEchoGenerator(t *testing.T) {
	text, err := EchoGenerator{}.Generate(context.Background(), "café")
	require.NoError(t, err)
	require.Equal(t, "echo analysis (4 characters): café", text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = EchoGenerator{Latency: time.Hour}.Generate(ctx, "prompt")
	require.ErrorIs(t, err, context.Canceled)
}

func TestGeneratorFunc(t *testing.T) {
	var gen Generator = GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "analysis of " + prompt, nil
	})
	text, err := gen.Generate(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "analysis of x", text)
}
