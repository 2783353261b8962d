/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestTypeContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, GetRequestTypeFromContext(ctx))
	require.Equal(t, "gemini", requestTypeOf(ctx, "gemini"))

	ctx = NewContextWithRequestType(ctx, "generate")
	require.Equal(t, "generate", GetRequestTypeFromContext(ctx))
	require.Equal(t, "generate", requestTypeOf(ctx, "gemini"))
}
