package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/healthlock/consent-node/internal/core/services"
	"github.com/healthlock/consent-node/internal/log"
	"github.com/healthlock/consent-node/internal/repositories"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func render(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error(r.Context(), "encoding response", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		render(w, r, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}
	return true
}

// renderError maps domain rejections to stable statuses: precondition failures
// to 400, authorization failures to 403, state conflicts to 409, throttling to
// 429 and infrastructure trouble to 503.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		credErr  *services.CredentialError
		transErr *services.InvalidTransitionError
		emErr    *services.EmergencyError
		prErr    *services.ProofError
		infraErr *services.InfraError
		keyErr   *services.KeyGenFailureError
	)

	switch {
	case errors.As(err, &credErr):
		status := http.StatusForbidden
		if credErr.Kind == services.CredentialMalformed || credErr.Kind == services.CredentialPolicyViolation {
			status = http.StatusBadRequest
		}
		render(w, r, status, errorBody{Error: credErr.Reason, Kind: string(credErr.Kind)})

	case errors.As(err, &transErr):
		render(w, r, http.StatusConflict, errorBody{Error: transErr.Error(), Kind: "InvalidTransition"})

	case errors.As(err, &emErr):
		status := http.StatusForbidden
		switch emErr.Kind {
		case services.EmergencyJustificationTooShort, services.EmergencyDurationNotAllowed, services.EmergencyDuplicateAuthorizer:
			status = http.StatusBadRequest
		}
		render(w, r, status, errorBody{Error: emErr.Reason, Kind: string(emErr.Kind)})

	case errors.As(err, &prErr):
		render(w, r, http.StatusNotFound, errorBody{Error: prErr.Error(), Kind: string(prErr.Kind)})

	case errors.Is(err, services.ErrRateLimited):
		render(w, r, http.StatusTooManyRequests, errorBody{Error: err.Error(), Kind: "RateLimited"})

	case errors.Is(err, repositories.ErrConsentNotFound),
		errors.Is(err, repositories.ErrEmergencyNotFound),
		errors.Is(err, repositories.ErrContentNotFound):
		render(w, r, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "NotFound"})

	case errors.As(err, &infraErr):
		log.Error(r.Context(), "infrastructure failure", infraErr)
		render(w, r, http.StatusServiceUnavailable, errorBody{Error: "service temporarily unavailable", Kind: string(infraErr.Kind)})

	case errors.As(err, &keyErr):
		log.Error(r.Context(), "key custody failure", keyErr)
		render(w, r, http.StatusInternalServerError, errorBody{Error: "key custody failure", Kind: "KeyGenFailure"})

	default:
		log.Error(r.Context(), "unhandled error", err)
		render(w, r, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
