package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
)

// GrantEmergencyRequest is the body of POST /emergency/grant-consent
type GrantEmergencyRequest struct {
	SubjectID     string            `json:"subjectId"`
	RequesterID   string            `json:"requesterId"`
	EmergencyType string            `json:"emergencyType"`
	Justification string            `json:"justification"`
	Primary       domain.Authorizer `json:"primaryAuthorizer"`
	Secondary     domain.Authorizer `json:"secondaryAuthorizer"`
	NextOfKin     *domain.NextOfKin `json:"nextOfKin,omitempty"`
	DurationHours int               `json:"durationHours"`
}

// GrantEmergencyResponse carries the grant and its limited credential
type GrantEmergencyResponse struct {
	Emergency  *domain.EmergencyConsentRecord `json:"emergency"`
	Credential *domain.Credential             `json:"credential"`
}

// GrantEmergency handles a dual-authorized override request
func (s *Server) GrantEmergency(w http.ResponseWriter, r *http.Request) {
	var req GrantEmergencyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" || req.RequesterID == "" {
		render(w, r, http.StatusBadRequest, errorBody{Error: "subjectId and requesterId are required"})
		return
	}

	rec, cred, err := s.emergency.Grant(r.Context(), ports.EmergencyRequest{
		SubjectID:     req.SubjectID,
		RequesterID:   req.RequesterID,
		EmergencyType: req.EmergencyType,
		Justification: req.Justification,
		Primary:       req.Primary,
		Secondary:     req.Secondary,
		NextOfKin:     req.NextOfKin,
		Duration:      time.Duration(req.DurationHours) * time.Hour,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, http.StatusCreated, GrantEmergencyResponse{Emergency: rec, Credential: cred})
}

// RevokeEmergencyRequest is the body of POST /emergency/revoke-consent
type RevokeEmergencyRequest struct {
	EmergencyID string `json:"emergencyId"`
}

// RevokeEmergency terminates an active grant before its expiry
func (s *Server) RevokeEmergency(w http.ResponseWriter, r *http.Request) {
	var req RevokeEmergencyRequest
	if !decode(w, r, &req) {
		return
	}

	id, err := uuid.Parse(req.EmergencyID)
	if err != nil {
		render(w, r, http.StatusBadRequest, errorBody{Error: "emergencyId must be a uuid"})
		return
	}

	if err := s.emergency.Revoke(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, map[string]bool{"revoked": true})
}
