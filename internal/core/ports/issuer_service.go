package ports

import (
	"context"
	"time"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// AuthorizationKind distinguishes the two ways a caller can prove the right to
// trigger issuance.
type AuthorizationKind string

// Authorization kinds
const (
	AuthSubject   AuthorizationKind = "subject"
	AuthEmergency AuthorizationKind = "emergency"
)

// Authorization is the caller's proof of the issuance precondition: either the
// authenticated subject key of the record owner, or a validated emergency grant.
type Authorization struct {
	Kind           AuthorizationKind
	SubjectKey     string
	EmergencyGrant *domain.EmergencyConsentRecord
}

// IssueRequest describes a credential to be minted.
type IssueRequest struct {
	SubjectDID     string
	AudienceID     string
	RecordPointers []string
	Scope          string
	Limitations    []string
	TTL            time.Duration
	Authorization  Authorization
}

// IssuerService mints signed, time-bound credentials. The minted credential is
// persisted by the owning ledger repository in the same transaction as the row
// that caused it, so both land or neither does.
type IssuerService interface {
	Mint(ctx context.Context, req IssueRequest) (*domain.Credential, error)
}
