package ports

import (
	"context"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// IdentityService is the subject identity custody surface
type IdentityService interface {
	// EnsureIdentity is idempotent: it returns the existing identity for the
	// subject key, or generates a DID and keypair on first call.
	EnsureIdentity(ctx context.Context, subjectKey string) (*domain.Identity, error)
}
