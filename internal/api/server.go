// Package api exposes the engine over HTTP/JSON.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/healthlock/consent-node/internal/cache"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/health"
)

// Server holds the service surface behind the HTTP handlers. Handlers are
// stateless; all state lives behind the services.
type Server struct {
	identity  ports.IdentityService
	issuer    ports.IssuerService
	verifier  ports.VerifierService
	consents  ports.ConsentService
	emergency ports.EmergencyService
	proofs    ports.ProofService
	analyzer  ports.Analyzer
	records   ports.ContentStore
	cache     cache.Cache
	health    *health.Status
}

// NewServer wires the handler surface
func NewServer(
	identity ports.IdentityService,
	issuer ports.IssuerService,
	verifier ports.VerifierService,
	consents ports.ConsentService,
	emergency ports.EmergencyService,
	proofs ports.ProofService,
	analyzer ports.Analyzer,
	records ports.ContentStore,
	c cache.Cache,
	h *health.Status,
) *Server {
	return &Server{
		identity:  identity,
		issuer:    issuer,
		verifier:  verifier,
		consents:  consents,
		emergency: emergency,
		proofs:    proofs,
		analyzer:  analyzer,
		records:   records,
		cache:     c,
		health:    h,
	}
}

// Routes registers every endpoint on the mux
func (s *Server) Routes(mux *chi.Mux) {
	mux.Get("/status", s.Status)

	mux.Post("/request-consent", s.RequestConsent)
	mux.Post("/consent", s.DecideConsent)
	mux.Post("/revoke-consent", s.RevokeConsent)
	mux.Post("/issue-consent", s.IssueConsent)
	mux.Post("/get-record", s.GetRecord)

	mux.Route("/emergency", func(r chi.Router) {
		r.Post("/grant-consent", s.GrantEmergency)
		r.Post("/revoke-consent", s.RevokeEmergency)
	})

	mux.Route("/zkp", func(r chi.Router) {
		r.Post("/generate-proofs-from-form", s.GenerateProofs)
		r.Post("/verify-code", s.VerifyCode)
	})
}
