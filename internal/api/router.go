package rest

import (
	"crypto/rsa"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns a configured chi.Router for the Calpol API.
//
// Route layout:
//
//	GET  /healthz               – liveness probe (no authentication required)
//	GET  /api/v1/probes         – list configured probes (JWT required)
//	PUT  /api/v1/probes/{id}    – create or update a probe (JWT required)
//	GET  /api/v1/runs           – list recent run logs (JWT required)
//	POST /api/v1/runs/queue     – request an out-of-cadence run (JWT required)
//
// pubKey is the RSA public key used to verify RS256 Bearer tokens on all
// /api routes. Pass nil to disable JWT validation (useful in tests that
// cover only request parsing/response formatting).
func NewRouter(srv *Server, pubKey *rsa.PublicKey) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		if pubKey != nil {
			r.Use(JWTMiddleware(pubKey))
		}

		r.Get("/probes", srv.handleListProbes)
		r.Put("/probes/{id}", srv.handlePutProbe)
		r.Get("/runs", srv.handleListRuns)
		r.Post("/runs/queue", srv.handleQueueRun)
	})

	return r
}
