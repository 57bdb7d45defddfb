package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// CredentialRepository persists issued credentials
type CredentialRepository interface {
	Save(ctx context.Context, cred *domain.Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error)
	// Revoke flips the monotonic revoked flag. Revoking an already revoked
	// credential is a no-op, never a reversal.
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}
