package ports

import (
	"context"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// IdentityRepository persists subject identities
type IdentityRepository interface {
	Save(ctx context.Context, identity *domain.Identity) error
	GetBySubjectKey(ctx context.Context, subjectKey string) (*domain.Identity, error)
	GetByDID(ctx context.Context, did string) (*domain.Identity, error)
}
