/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides log.FieldLogger implementations for tests.
// Recorder keeps every written entry so tests can assert on messages and fields.
package logtest
