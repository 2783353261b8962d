/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertion helpers for HTTP responses, errors and Prometheus metrics
// shared by the tests of other packages.
package testutil

type tHelper interface {
	Helper()
}
