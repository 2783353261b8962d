/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package generator

import (
	"context"
	"fmt"
	"time"
)

// EchoGenerator answers with a canned analysis of the prompt. It is used for local runs without a credential.
type EchoGenerator struct {
	Latency time.Duration
}

var _ Generator = EchoGenerator{}

// Generate returns the prompt statistics after the configured latency.
func (g EchoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.Latency > 0 {
		timer := time.NewTimer(g.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf("echo analysis (%d characters): %s", len([]rune(prompt)), prompt), nil
}
