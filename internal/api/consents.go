package api

import (
	"net/http"
	"time"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
)

// RequestConsentRequest is the body of POST /request-consent
type RequestConsentRequest struct {
	SubjectID   string `json:"subjectId"`
	RequesterID string `json:"requesterId"`
	Reason      string `json:"reason"`
}

// ConsentResponse is the consent row returned by the lifecycle endpoints
type ConsentResponse struct {
	Consent *domain.ConsentRecord `json:"consent"`
}

// RequestConsent opens a consent request for a (subject, requester) pair
func (s *Server) RequestConsent(w http.ResponseWriter, r *http.Request) {
	var req RequestConsentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" || req.RequesterID == "" {
		render(w, r, http.StatusBadRequest, errorBody{Error: "subjectId and requesterId are required"})
		return
	}

	rec, err := s.consents.Request(r.Context(), req.SubjectID, req.RequesterID, req.Reason)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, http.StatusCreated, ConsentResponse{Consent: rec})
}

// DecideConsentRequest is the body of POST /consent. Approved selects between
// the approve and deny transitions.
type DecideConsentRequest struct {
	SubjectID      string   `json:"subjectId"`
	RequesterID    string   `json:"requesterId"`
	GrantedBy      string   `json:"grantedBy"`
	Approved       *bool    `json:"approved"`
	Reason         string   `json:"reason"`
	TTLHours       int      `json:"ttlHours"`
	RecordPointers []string `json:"recordPointers"`
	Scope          string   `json:"scope"`
}

// DecideConsentResponse carries the new row and, on approval, the credential
type DecideConsentResponse struct {
	Consent    *domain.ConsentRecord `json:"consent"`
	Credential *domain.Credential    `json:"credential,omitempty"`
}

// DecideConsent resolves a pending request: approve mints the credential, deny
// closes the request.
func (s *Server) DecideConsent(w http.ResponseWriter, r *http.Request) {
	var req DecideConsentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" || req.RequesterID == "" {
		render(w, r, http.StatusBadRequest, errorBody{Error: "subjectId and requesterId are required"})
		return
	}

	approved := req.Approved == nil || *req.Approved
	if !approved {
		rec, err := s.consents.Deny(r.Context(), req.SubjectID, req.RequesterID, req.Reason)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render(w, r, http.StatusOK, DecideConsentResponse{Consent: rec})
		return
	}

	rec, cred, err := s.consents.Approve(r.Context(), ports.ApproveRequest{
		SubjectID:      req.SubjectID,
		RequesterID:    req.RequesterID,
		GrantedBy:      req.GrantedBy,
		TTL:            time.Duration(req.TTLHours) * time.Hour,
		RecordPointers: req.RecordPointers,
		Scope:          req.Scope,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, DecideConsentResponse{Consent: rec, Credential: cred})
}

// RevokeConsentRequest is the body of POST /revoke-consent
type RevokeConsentRequest struct {
	SubjectID   string `json:"subjectId"`
	RequesterID string `json:"requesterId"`
}

// RevokeConsent withdraws a live approval
func (s *Server) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	var req RevokeConsentRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := s.consents.Revoke(r.Context(), req.SubjectID, req.RequesterID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, ConsentResponse{Consent: rec})
}
