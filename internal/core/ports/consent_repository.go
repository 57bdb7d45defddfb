package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// ConsentRepository owns the append-style consent ledger. Rows are never deleted;
// each transition inserts a new row and marks its predecessor superseded.
type ConsentRepository interface {
	// GetCurrent returns the single non-superseded row for the pair, or
	// ErrConsentNotFound when the pair has no history (the implicit NONE state).
	GetCurrent(ctx context.Context, subjectID, requesterID string) (*domain.ConsentRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ConsentRecord, error)
	GetByCredentialID(ctx context.Context, credentialID uuid.UUID) (*domain.ConsentRecord, error)
	// Transition atomically supersedes prev (nil when transitioning from NONE)
	// with next, persisting cred in the same transaction when non-nil and marking
	// the linked credential revoked when next is a revocation. It fails with
	// ErrConcurrentModification when prev is no longer the current row, so a
	// revoke racing an approve can never be silently lost.
	Transition(ctx context.Context, prev, next *domain.ConsentRecord, cred *domain.Credential) error
}
