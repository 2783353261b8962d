/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/acronis/go-prooflens/log"
)

const (
	logKeyMethod = "method"
	logKeyURI    = "uri"
	logKeyStatus = "status"
)

const maxClientErrorBodySize = 64 * 1024

// DoRequest does the HTTP request and logs its details.
// The request URL is logged without the query string.
func DoRequest(client *http.Client, req *http.Request, logger log.FieldLogger) (*http.Response, error) {
	uri := redactedURI(req)
	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("sent request", log.String(logKeyMethod, req.Method), log.String(logKeyURI, uri))
	})

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn(fmt.Sprintf("failed to do http request %s %s", req.Method, uri), log.Error(err))
		return nil, fmt.Errorf("do request: %w", err)
	}

	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("got response",
			log.String(logKeyMethod, req.Method), log.String(logKeyURI, uri), log.Int(logKeyStatus, resp.StatusCode))
	})
	return resp, nil
}

// DoRequestAndUnmarshalJSON does the HTTP request and decodes the JSON body of a 2xx response into result.
// Any other response is returned as *ClientError. Its Err is an *ErrorResponseData if the body has this format.
func DoRequestAndUnmarshalJSON(client *http.Client, req *http.Request, result interface{}, logger log.FieldLogger) error {
	resp, err := DoRequest(client, req, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", log.Error(closeErr))
		}
	}()

	errURL := *req.URL
	errURL.RawQuery = ""
	cliErr := &ClientError{Method: req.Method, URL: &errURL, StatusCode: resp.StatusCode}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxClientErrorBodySize))
		if readErr != nil {
			return cliErr.wrap("reading error response body", readErr)
		}
		cliErr.Body = body
		if len(body) == 0 {
			cliErr.Message = "empty error response"
			return cliErr
		}
		if !strings.Contains(resp.Header.Get("Content-Type"), ContentTypeAppJSON) {
			cliErr.Message = "error response with unexpected Content-Type " + resp.Header.Get("Content-Type")
			return cliErr
		}
		var apiErr ErrorResponseData
		if unmarshalErr := json.Unmarshal(body, &apiErr); unmarshalErr != nil || apiErr.Err == nil {
			cliErr.Message = "error response of unknown format"
			return cliErr
		}
		return cliErr.wrap("error response", &apiErr)
	}

	if result == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cliErr.wrap("reading response body", err)
	}
	if len(body) == 0 {
		cliErr.Message = "empty response"
		return cliErr
	}
	if err = json.Unmarshal(body, result); err != nil {
		cliErr.Body = body
		return cliErr.wrap("unmarshaling response", err)
	}
	return nil
}

// NewJSONRequest creates a new http.Request with JSON-encoded data as body.
func NewJSONRequest(ctx context.Context, method, url string, data interface{}) (*http.Request, error) {
	if data == nil {
		return nil, fmt.Errorf("data cannot be nil")
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, fmt.Errorf("method %s is not allowed for json request", method)
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	return req, nil
}

func redactedURI(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
