/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import "errors"

// Errors returned by Scheduler.Submit.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrOverload      = errors.New("admission queue is full")
	ErrTimeout       = errors.New("timed out waiting for the analysis")
	ErrQuotaExceeded = errors.New("downstream quota exceeded")
	ErrDownstream    = errors.New("downstream failure")
	ErrStopped       = errors.New("scheduler is stopped")
)

// DownstreamError is a terminal failure reported by the generator.
type DownstreamError struct {
	Err error
}

func (e *DownstreamError) Error() string {
	return "downstream failure: " + e.Err.Error()
}

// Unwrap returns the generator error.
func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDownstream) true for every DownstreamError.
func (e *DownstreamError) Is(target error) bool {
	return target == ErrDownstream
}
