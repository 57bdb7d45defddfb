package domain

import (
	"time"

	"github.com/google/uuid"
)

// MinJustificationLength is the minimum length of an emergency justification.
const MinJustificationLength = 50

// Authorizer identifies one of the two staff members attesting to an emergency grant.
type Authorizer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// NextOfKin captures the notification details recorded on an emergency grant.
// Delivery itself is an external collaborator; the details stay on the row for
// the audit trail.
type NextOfKin struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

// StaffMember is a registered member of a requester organization.
type StaffMember struct {
	ID     string `json:"id"`
	OrgID  string `json:"orgId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	OnDuty bool   `json:"onDuty"`
}

// IsAdmin reports whether the staff member may act in the documented
// admin-fallback capacity when regular on-duty staff are unavailable.
func (s *StaffMember) IsAdmin() bool {
	return s.Role == "admin"
}

// EmergencyConsentRecord is a dual-human-attested, time-boxed bypass of the normal
// consent flow. Never deleted; revocation and expiry are terminal, reactivation
// requires a new record.
type EmergencyConsentRecord struct {
	ID            uuid.UUID  `json:"id"`
	SubjectID     string     `json:"subjectId"`
	RequesterID   string     `json:"requesterId"`
	EmergencyType string     `json:"emergencyType"`
	Justification string     `json:"justification"`
	Primary       Authorizer `json:"primaryAuthorizer"`
	Secondary     Authorizer `json:"secondaryAuthorizer"`
	NextOfKin     *NextOfKin `json:"nextOfKin,omitempty"`
	GrantedAt     time.Time  `json:"grantedAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	CredentialID  *uuid.UUID `json:"credentialId,omitempty"`
	Limitations   []string   `json:"limitations"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether the grant is still in force at the given instant.
func (e *EmergencyConsentRecord) Active(now time.Time) bool {
	return e.RevokedAt == nil && now.Before(e.ExpiresAt)
}
