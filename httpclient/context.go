/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const ctxKeyRequestType ctxKey = iota

// NewContextWithRequestType creates a new context with request type.
// It overrides the type the client was created with for a single request.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext extracts request type from the context.
func GetRequestTypeFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRequestType).(string)
	return s
}

func requestTypeOf(ctx context.Context, fallback string) string {
	if reqType := GetRequestTypeFromContext(ctx); reqType != "" {
		return reqType
	}
	return fallback
}
