/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"net/http"
)

// ErrAPIKeyMissing is returned by APIKeyRoundTripper when the provider returns an empty key.
var ErrAPIKeyMissing = errors.New("api key is not configured")

// APIKeyProvider provides the key that authorizes requests to the downstream service.
type APIKeyProvider interface {
	GetAPIKey(ctx context.Context) (string, error)
}

// StaticAPIKey is an APIKeyProvider that always returns the same key.
type StaticAPIKey string

// GetAPIKey implements APIKeyProvider.
func (k StaticAPIKey) GetAPIKey(context.Context) (string, error) {
	return string(k), nil
}

// APIKeyRoundTripper implements http.RoundTripper interface
// and sets the API key header in all outgoing requests.
type APIKeyRoundTripper struct {
	Delegate   http.RoundTripper
	HeaderName string
	Provider   APIKeyProvider
}

// NewAPIKeyRoundTripper creates a new APIKeyRoundTripper.
func NewAPIKeyRoundTripper(delegate http.RoundTripper, headerName string, provider APIKeyProvider) *APIKeyRoundTripper {
	return &APIKeyRoundTripper{Delegate: delegate, HeaderName: headerName, Provider: provider}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *APIKeyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(rt.HeaderName) != "" {
		return rt.Delegate.RoundTrip(req)
	}
	closeBody := func() {
		if req.Body != nil {
			_ = req.Body.Close() // Per RoundTripper contract.
		}
	}
	key, err := rt.Provider.GetAPIKey(req.Context())
	if err != nil {
		closeBody()
		return nil, err
	}
	if key == "" {
		closeBody()
		return nil, ErrAPIKeyMissing
	}
	req = req.Clone(req.Context()) // Per RoundTripper contract.
	req.Header.Set(rt.HeaderName, key)
	return rt.Delegate.RoundTrip(req)
}
