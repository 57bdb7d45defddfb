package ports

import (
	"context"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// ProofRepository persists proof records. Verification reads are read-only.
type ProofRepository interface {
	Save(ctx context.Context, rec *domain.ProofRecord) error
	GetByCode(ctx context.Context, code string) (*domain.ProofRecord, error)
	// CodeInUse reports whether an active proof currently holds the code.
	CodeInUse(ctx context.Context, code string) (bool, error)
}
