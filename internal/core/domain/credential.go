package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential is a signed, time-bound assertion that audience AudienceID may access
// the record pointers in Claims. Immutable once issued except the monotonic revoked
// flag, which moves false to true exactly once and is never reversed.
type Credential struct {
	ID             uuid.UUID  `json:"id"`
	SubjectDID     string     `json:"subjectDid"`
	IssuerDID      string     `json:"issuerDid"`
	AudienceID     string     `json:"audienceId"`
	RecordPointers []string   `json:"recordPointers"`
	Scope          string     `json:"scope"`
	Limitations    []string   `json:"limitations,omitempty"`
	IssuedAt       time.Time  `json:"issuedAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	SignedToken    string     `json:"signedToken"`
	Revoked        bool       `json:"revoked"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
}

// Expired reports whether the credential lifetime has elapsed at the given instant.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
