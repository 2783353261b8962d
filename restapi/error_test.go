/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHttpCode2ErrorCode(t *testing.T) {
	tests := []struct {
		httpCode    int
		wantErrCode string
	}{
		{http.StatusInternalServerError, "internalError"},
		{http.StatusBadRequest, "badRequest"},
		{http.StatusRequestEntityTooLarge, "requestEntityTooLarge"},
		{http.StatusUnsupportedMediaType, "unsupportedMediaType"},
		{http.StatusNonAuthoritativeInfo, "nonAuthoritativeInformation"},
	}
	for _, tt := range tests {
		t.Run(tt.wantErrCode, func(t *testing.T) {
			assert.Equal(t, tt.wantErrCode, httpCode2ErrorCode(tt.httpCode))
		})
	}
}

func TestError_AddContextAndDebug(t *testing.T) {
	err := NewError("ProofLens", "overloaded", "Server is busy.").
		AddContext("queueCapacity", 15).
		AddDebug("queueDepth", 15)
	require.Equal(t, map[string]interface{}{"queueCapacity": 15}, err.Context)
	require.Equal(t, map[string]interface{}{"queueDepth": 15}, err.Debug)

	internal := NewInternalError("ProofLens")
	require.Equal(t, ErrCodeInternal, internal.Code)
	require.Equal(t, ErrMessageInternal, internal.Message)
}
