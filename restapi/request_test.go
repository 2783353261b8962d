/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequestJSON(t *testing.T) {
	type analyzeRequest struct {
		Prompt   string `json:"prompt"`
		Priority *int   `json:"priority"`
	}

	badRequest := func(msg string) error {
		return &MalformedRequestError{HTTPStatusCode: http.StatusBadRequest, Message: msg}
	}

	tests := []struct {
		name            string
		contentType     string
		body            string
		maxBodySize     uint64
		disallowUnknown bool
		wantErr         error
		wantReq         analyzeRequest
	}{
		{
			name:    "valid request without content type",
			body:    `{"prompt":"Is the sky blue?"}`,
			wantReq: analyzeRequest{Prompt: "Is the sky blue?"},
		},
		{
			name:        "valid request with charset",
			contentType: "application/json; charset=utf-8",
			body:        `{"prompt":"claim","priority":1}`,
			wantReq:     analyzeRequest{Prompt: "claim", Priority: intPtr(1)},
		},
		{
			name:        "unsupported content type",
			contentType: "text/plain",
			body:        `{"prompt":"claim"}`,
			wantErr: &MalformedRequestError{
				HTTPStatusCode: http.StatusUnsupportedMediaType,
				Message:        `Content-Type "text/plain" is not supported.`,
			},
		},
		{
			name:        "unparsable content type",
			contentType: "invalid content type",
			body:        `{"prompt":"claim"}`,
			wantErr: &MalformedRequestError{
				HTTPStatusCode: http.StatusUnsupportedMediaType,
				Message:        "Failed to parse Content-Type header: mime: expected slash after first token.",
			},
		},
		{
			name:    "empty body",
			wantErr: badRequest("Request body must not be empty."),
		},
		{
			name:    "truncated JSON",
			body:    `{"prompt":"claim"`,
			wantErr: badRequest("Request body contains badly-formed JSON."),
		},
		{
			name:    "syntax error",
			body:    `{"prompt":claim}`,
			wantErr: badRequest("Request body contains badly-formed JSON (at position 11)."),
		},
		{
			name:    "wrong field type",
			body:    `{"prompt":"claim","priority":"high"}`,
			wantErr: badRequest(`Request body contains an invalid value for the "priority" field (at position 35).`),
		},
		{
			name:        "body too large",
			body:        `{"prompt":"a very long claim that does not fit"}`,
			maxBodySize: 20,
			wantErr: &MalformedRequestError{
				HTTPStatusCode: http.StatusRequestEntityTooLarge,
				Message:        "Request body must not be larger than 20B.",
			},
		},
		{
			name:    "several objects",
			body:    `{"prompt":"a"}{"prompt":"b"}`,
			wantErr: badRequest("Request body must only contain a single JSON object."),
		},
		{
			name:    "unknown fields are ignored by default",
			body:    `{"prompt":"claim","model":"other"}`,
			wantReq: analyzeRequest{Prompt: "claim"},
		},
		{
			name:            "unknown fields are rejected in strict mode",
			body:            `{"prompt":"claim","model":"other"}`,
			disallowUnknown: true,
			wantErr:         badRequest(`Request body contains unknown field "model".`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.maxBodySize != 0 {
				SetRequestMaxBodySize(httptest.NewRecorder(), req, tt.maxBodySize)
			}
			var got analyzeRequest
			err := DecodeRequestJSONStrict(req, &got, tt.disallowUnknown)
			if tt.wantErr != nil {
				require.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantReq, got)
		})
	}
}

func intPtr(v int) *int {
	return &v
}
