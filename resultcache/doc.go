/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package resultcache provides an in-memory key-value store with write-once entries,
// optional LRU bound and Prometheus metrics.
// It backs the fingerprint cache of analysis results and the per-client rate limiter windows.
package resultcache
