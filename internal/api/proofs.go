package api

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// GenerateProofsRequest is the body of POST /zkp/generate-proofs-from-form.
// FormData carries the free-form record fields the analyzer consumes.
type GenerateProofsRequest struct {
	SubjectID string            `json:"subjectId"`
	FormData  map[string]string `json:"formData"`
}

// ProofResponse is one disclosable proof. The source text never appears here.
type ProofResponse struct {
	ProofType        string          `json:"proofType"`
	Statement        string          `json:"statement"`
	Category         domain.Category `json:"category"`
	Contagious       bool            `json:"contagious"`
	VerificationCode string          `json:"verificationCode"`
	OfflinePayload   string          `json:"offlinePayload"`
	ExpiresAt        string          `json:"expiresAt"`
}

// GenerateProofsResponse lists the generated proofs
type GenerateProofsResponse struct {
	Proofs []ProofResponse `json:"proofs"`
}

// GenerateProofs analyzes the submitted record text and derives disclosable
// proofs with verification codes and offline payloads.
func (s *Server) GenerateProofs(w http.ResponseWriter, r *http.Request) {
	var req GenerateProofsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" {
		render(w, r, http.StatusBadRequest, errorBody{Error: "subjectId is required"})
		return
	}

	text := joinForm(req.FormData)
	if text == "" {
		render(w, r, http.StatusBadRequest, errorBody{Error: "formData must carry record text"})
		return
	}

	identity, err := s.identity.EnsureIdentity(r.Context(), req.SubjectID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	facts := s.analyzer.Analyze(text)
	records, err := s.proofs.GenerateProofs(r.Context(), identity.DID, facts, text)
	if err != nil {
		renderError(w, r, err)
		return
	}

	out := make([]ProofResponse, 0, len(records))
	for _, rec := range records {
		payload, err := s.proofs.OfflinePayload(rec)
		if err != nil {
			renderError(w, r, err)
			return
		}
		out = append(out, ProofResponse{
			ProofType:        rec.ProofType,
			Statement:        rec.PublicStatement,
			Category:         rec.Category,
			Contagious:       rec.Contagious,
			VerificationCode: rec.VerificationCode,
			OfflinePayload:   payload,
			ExpiresAt:        rec.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	render(w, r, http.StatusCreated, GenerateProofsResponse{Proofs: out})
}

// joinForm folds the form fields into one analyzable text in a stable field
// order, matching the diagnosis/prescription/treatment layout of intake forms.
func joinForm(form map[string]string) string {
	ordered := []string{"diagnosis", "prescription", "treatment"}
	parts := make([]string, 0, len(form))
	seen := map[string]bool{}
	for _, key := range ordered {
		if v := strings.TrimSpace(form[key]); v != "" {
			parts = append(parts, v)
			seen[key] = true
		}
	}
	// unknown fields still contribute, appended in sorted order for determinism
	extra := make([]string, 0, len(form))
	for key, v := range form {
		if !seen[key] && strings.TrimSpace(v) != "" {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		parts = append(parts, strings.TrimSpace(form[key]))
	}
	return strings.Join(parts, " ")
}

// VerifyCodeRequest is the body of POST /zkp/verify-code. Exactly one of Code,
// Codes or Payload is expected: single online check, batch online check, or
// offline payload check.
type VerifyCodeRequest struct {
	ActorID string   `json:"actorId"`
	Code    string   `json:"code,omitempty"`
	Codes   []string `json:"codes,omitempty"`
	Payload string   `json:"payload,omitempty"`
}

// VerifyCode resolves verification codes against the authoritative store, or an
// offline payload against the engine signature.
func (s *Server) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if !decode(w, r, &req) {
		return
	}
	actor := req.ActorID
	if actor == "" {
		actor = r.RemoteAddr
	}

	switch {
	case req.Payload != "":
		render(w, r, http.StatusOK, s.proofs.VerifyOffline(req.Payload))

	case len(req.Codes) > 0:
		batch, err := s.proofs.VerifyCodes(r.Context(), actor, req.Codes)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render(w, r, http.StatusOK, batch)

	case req.Code != "":
		result, err := s.proofs.VerifyCode(r.Context(), actor, req.Code)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render(w, r, http.StatusOK, result)

	default:
		render(w, r, http.StatusBadRequest, errorBody{Error: "code, codes or payload is required"})
	}
}
