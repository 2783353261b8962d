/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-prooflens/httpserver/middleware"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/log/logtest"
)

func TestLoggingRoundTripper(t *testing.T) {
	newServer := func(status int, delay time.Duration) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			time.Sleep(delay)
			rw.WriteHeader(status)
		}))
	}

	tests := []struct {
		name          string
		status        int
		delay         time.Duration
		opts          LoggingRoundTripperOpts
		wantLogged    bool
		wantLogLevel  log.Level
		wantTypeInLog string
	}{
		{
			name:         "all mode, success",
			status:       http.StatusOK,
			opts:         LoggingRoundTripperOpts{Mode: LoggingModeAll},
			wantLogged:   true,
			wantLogLevel: log.LevelInfo,
		},
		{
			name:         "all mode, failure",
			status:       http.StatusTeapot,
			opts:         LoggingRoundTripperOpts{Mode: LoggingModeAll},
			wantLogged:   true,
			wantLogLevel: log.LevelWarn,
		},
		{
			name:   "failed mode, success",
			status: http.StatusOK,
			opts:   LoggingRoundTripperOpts{Mode: LoggingModeFailed},
		},
		{
			name:         "failed mode, failure",
			status:       http.StatusTooManyRequests,
			opts:         LoggingRoundTripperOpts{Mode: LoggingModeFailed},
			wantLogged:   true,
			wantLogLevel: log.LevelWarn,
		},
		{
			name:         "failed mode, slow success",
			status:       http.StatusOK,
			delay:        50 * time.Millisecond,
			opts:         LoggingRoundTripperOpts{Mode: LoggingModeFailed, SlowRequestThreshold: 10 * time.Millisecond},
			wantLogged:   true,
			wantLogLevel: log.LevelWarn,
		},
		{
			name:   "none mode",
			status: http.StatusInternalServerError,
			opts:   LoggingRoundTripperOpts{Mode: LoggingModeNone},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(tt.status, tt.delay)
			defer server.Close()

			logger := logtest.NewRecorder()
			client := &http.Client{Transport: NewLoggingRoundTripperWithOpts(http.DefaultTransport, "test-request", tt.opts)}
			ctx := middleware.NewContextWithLogger(context.Background(), logger)
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL+"/path?key=secret", nil)
			require.NoError(t, err)

			resp, err := client.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()

			if !tt.wantLogged {
				require.Empty(t, logger.Entries())
				return
			}
			require.Len(t, logger.Entries(), 1)
			entry := logger.Entries()[0]
			require.Equal(t, tt.wantLogLevel, entry.Level)
			require.Contains(t, entry.Text, "client http request POST "+server.URL+"/path?redacted, req type test-request")
			require.NotContains(t, entry.Text, "secret")
			statusField, ok := entry.FindField("status")
			require.True(t, ok)
			require.EqualValues(t, tt.status, statusField.Int)
		})
	}
}

func TestLoggingRoundTripperTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serverURL := "http://" + ln.Addr().String()
	_ = ln.Close()

	logger := logtest.NewRecorder()
	client := &http.Client{Transport: NewLoggingRoundTripperWithOpts(
		http.DefaultTransport, "test-request", LoggingRoundTripperOpts{
			Mode:           LoggingModeFailed,
			LoggerProvider: func(ctx context.Context) log.FieldLogger { return logger },
		})}
	req, err := http.NewRequest(http.MethodPost, serverURL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req) // nolint: bodyclose
	require.Error(t, err)
	require.Nil(t, resp)

	require.Len(t, logger.Entries(), 1)
	entry := logger.Entries()[0]
	require.Equal(t, log.LevelWarn, entry.Level)
	require.True(t, strings.HasPrefix(entry.Text, "client http request POST "+serverURL))
	_, ok := entry.FindField("status")
	require.False(t, ok)
	_, ok = entry.FindField("error")
	require.True(t, ok)
}

func TestLoggingRoundTripperTimeSlot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	loggingParams := &middleware.LoggingParams{}
	ctx := middleware.NewContextWithLoggingParams(context.Background(), loggingParams)
	ctx = NewContextWithRequestType(ctx, "generate")
	client := &http.Client{Transport: NewLoggingRoundTripperWithOpts(
		http.DefaultTransport, "gemini", LoggingRoundTripperOpts{Mode: LoggingModeFailed})}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	_, ok := loggingParams.TimeSlotDurationInMs("external_request_generate_ms")
	require.True(t, ok)
}
