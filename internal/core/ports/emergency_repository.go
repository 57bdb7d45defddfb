package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// EmergencyRepository persists emergency consent records
type EmergencyRepository interface {
	// Save persists the record and its credential in the same transaction.
	Save(ctx context.Context, rec *domain.EmergencyConsentRecord, cred *domain.Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.EmergencyConsentRecord, error)
	GetByCredentialID(ctx context.Context, credentialID uuid.UUID) (*domain.EmergencyConsentRecord, error)
	// Revoke marks the record revoked and its credential with it. Terminal.
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}

// StaffRepository resolves registered staff of requester organizations
type StaffRepository interface {
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
}
