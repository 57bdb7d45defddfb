package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConsentStatus is the lifecycle state of a consent row.
type ConsentStatus string

// Consent lifecycle states. Expired is derived at read time from an approved row
// whose expiry has passed; it is never written as a transition.
const (
	ConsentRequested ConsentStatus = "REQUESTED"
	ConsentApproved  ConsentStatus = "APPROVED"
	ConsentDenied    ConsentStatus = "DENIED"
	ConsentRevoked   ConsentStatus = "REVOKED"
	ConsentExpired   ConsentStatus = "EXPIRED"
)

// ConsentRecord is one row of the append-style consent ledger. Each transition
// writes a new row and marks the previous one superseded; the current status of a
// (subject, requester) pair is the single row with no superseder.
type ConsentRecord struct {
	ID           uuid.UUID     `json:"id"`
	SubjectID    string        `json:"subjectId"`
	RequesterID  string        `json:"requesterId"`
	Status       ConsentStatus `json:"status"`
	Reason       string        `json:"reason"`
	GrantedBy    string        `json:"grantedBy,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	ExpiresAt    *time.Time    `json:"expiresAt,omitempty"`
	CredentialID *uuid.UUID    `json:"credentialId,omitempty"`
	SupersededBy *uuid.UUID    `json:"-"`
}

// EffectiveStatus returns the status of the row as observed at the given instant:
// an approved row past its expiry reads as expired without a write.
func (c *ConsentRecord) EffectiveStatus(now time.Time) ConsentStatus {
	if c.Status == ConsentApproved && c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return ConsentExpired
	}
	return c.Status
}
