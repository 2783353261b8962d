/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import "context"

type ctxKey int

const ctxKeyTaskID ctxKey = iota

// NewContextWithTaskID creates a new context with the identifier of the task being dispatched.
func NewContextWithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, ctxKeyTaskID, taskID)
}

// GetTaskIDFromContext extracts the task identifier from the context.
// The dispatcher puts it into the context passed to the generator.
func GetTaskIDFromContext(ctx context.Context) string {
	taskID, _ := ctx.Value(ctxKeyTaskID).(string)
	return taskID
}
