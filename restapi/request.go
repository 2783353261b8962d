/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// RequestBodyTooLargeError is returned on reading an HTTP request body beyond the configured limit.
type RequestBodyTooLargeError struct {
	MaxSizeBytes uint64
	Err          error
}

// Error returns a string representation of RequestBodyTooLargeError.
func (e *RequestBodyTooLargeError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying *http.MaxBytesError.
func (e *RequestBodyTooLargeError) Unwrap() error {
	return e.Err
}

type maxBytesReader struct {
	io.ReadCloser
	n uint64
}

func (r *maxBytesReader) Read(p []byte) (n int, err error) {
	n, err = r.ReadCloser.Read(p)
	var maxBytesErr *http.MaxBytesError
	if err != nil && errors.As(err, &maxBytesErr) {
		err = &RequestBodyTooLargeError{MaxSizeBytes: r.n, Err: err}
	}
	return
}

// SetRequestMaxBodySize wraps request body with a reader which limit the number of bytes to read.
// RequestBodyTooLargeError will be returned when maxSizeBytes is exceeded.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = &maxBytesReader{ReadCloser: http.MaxBytesReader(w, r.Body, int64(maxSizeBytes)), n: maxSizeBytes} //nolint:gosec
}

// MalformedRequestError is an error that occurs in case of incorrect request.
// ErrCode is derived from HTTPStatusCode when empty.
type MalformedRequestError struct {
	HTTPStatusCode int
	ErrCode        string
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

func newBadRequestError(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{HTTPStatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for case when request body is too large.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		HTTPStatusCode: http.StatusRequestEntityTooLarge,
		Message:        fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// DecodeRequestJSONStrict decodes request body as a single JSON object.
// With disallowUnknownFields, fields that dst doesn't declare make the request malformed.
func DecodeRequestJSONStrict(r *http.Request, dst interface{}, disallowUnknownFields bool) error {
	if reqContentType := r.Header.Get("Content-Type"); reqContentType != "" {
		contentType, _, err := mime.ParseMediaType(reqContentType)
		if err != nil {
			return &MalformedRequestError{
				HTTPStatusCode: http.StatusUnsupportedMediaType,
				Message:        fmt.Sprintf("Failed to parse Content-Type header: %s.", err),
			}
		}
		if contentType != ContentTypeAppJSON {
			return &MalformedRequestError{
				HTTPStatusCode: http.StatusUnsupportedMediaType,
				Message:        fmt.Sprintf("Content-Type %q is not supported.", contentType),
			}
		}
	}

	decoder := json.NewDecoder(r.Body)
	if disallowUnknownFields {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(dst); err != nil {
		return convertDecodeError(err)
	}
	if decoder.More() {
		return newBadRequestError("Request body must only contain a single JSON object.")
	}
	return nil
}

// DecodeRequestJSON tries to read request body and decode it as JSON.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	return DecodeRequestJSONStrict(r, dst, false)
}

func convertDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var tooLargeErr *RequestBodyTooLargeError

	switch {
	case errors.Is(err, io.EOF):
		return newBadRequestError("Request body must not be empty.")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return newBadRequestError("Request body contains badly-formed JSON.")
	case errors.As(err, &syntaxErr):
		return newBadRequestError("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		if unmarshalTypeErr.Field != "" {
			return newBadRequestError("Request body contains an invalid value for the %q field (at position %d).",
				unmarshalTypeErr.Field, unmarshalTypeErr.Offset)
		}
		return newBadRequestError("Request body contains an invalid value of type %q for the field of type %s.",
			unmarshalTypeErr.Value, unmarshalTypeErr.Type.String())
	case errors.As(err, &tooLargeErr):
		return NewTooLargeMalformedRequestError(tooLargeErr.MaxSizeBytes)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return newBadRequestError("Request body contains unknown field %s.", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return err
	}
}
