/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package api contains HTTP handlers of the ProofLens service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-prooflens/httpserver"
)

// ServiceNameInURL is the service part of the versioned API prefix.
const ServiceNameInURL = "prooflens"

// LivenessMessage is returned by GET /.
const LivenessMessage = "ProofLens Backend is Active!"

// ServerOpts returns httpserver options with the service routes:
// POST /api/prooflens/v1/analyze, its alias POST /analyze and the liveness page GET /.
func ServerOpts(analyze http.Handler, healthCheck httpserver.HealthCheck) httpserver.Opts {
	return httpserver.Opts{
		ServiceNameInURL: ServiceNameInURL,
		ErrorDomain:      ErrorDomain,
		HealthCheck:      healthCheck,
		APIRoutes: map[httpserver.APIVersion]httpserver.APIRoute{
			1: func(router chi.Router) {
				router.Method(http.MethodPost, "/analyze", analyze)
			},
		},
		RootRoutes: func(router chi.Router) {
			router.Get("/", serveLiveness)
			router.Method(http.MethodPost, "/analyze", analyze)
		},
	}
}

func serveLiveness(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte(LivenessMessage))
}
