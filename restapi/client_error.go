/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"fmt"
	"net/url"
)

// ClientError is returned by DoRequestAndUnmarshalJSON when a request got a non-2xx response
// or its body could not be read or decoded.
// Body holds the raw response body (at most maxClientErrorBodySize bytes) so callers can decode
// error formats other than ErrorResponseData.
type ClientError struct {
	Message    string
	Method     string
	URL        *url.URL
	StatusCode int
	Body       []byte
	Err        error
}

func (e *ClientError) wrap(message string, err error) *ClientError {
	e.Message = message
	e.Err = err
	return e
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	str := fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	if e.Err != nil {
		str += ": " + e.Err.Error()
	}
	return str
}

// Is allows checking the wrapped error with errors.Is.
func (e *ClientError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Unwrap returns the wrapped error.
func (e *ClientError) Unwrap() error {
	return e.Err
}
