/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides per-key request rate limiters (leaky bucket and sliding window)
// used to protect the analysis endpoint from a single noisy client.
package ratelimit
