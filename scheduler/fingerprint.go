/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint identifies a prompt. Equal normalized prompts have equal fingerprints.
type Fingerprint [sha256.Size]byte

// NormalizePrompt returns the canonical form of the prompt: Unicode NFC without surrounding white space.
func NormalizePrompt(prompt string) string {
	return strings.TrimSpace(norm.NFC.String(prompt))
}

// NewFingerprint computes the fingerprint of the normalized prompt.
func NewFingerprint(prompt string) Fingerprint {
	return sha256.Sum256([]byte(NormalizePrompt(prompt)))
}

// String returns the hex form used in logs.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}
