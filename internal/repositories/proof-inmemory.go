package repositories

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/core/domain"
)

type proofInMemory struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]domain.ProofRecord
}

// NewProofInMemory returns a ProofRepository implemented in memory, convenient
// for testing
func NewProofInMemory() *proofInMemory {
	return &proofInMemory{rows: make(map[uuid.UUID]domain.ProofRecord)}
}

func (p *proofInMemory) Save(_ context.Context, rec *domain.ProofRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, row := range p.rows {
		if row.Active && rec.Active && row.VerificationCode == rec.VerificationCode {
			return ErrCodeCollision
		}
	}
	p.rows[rec.ID] = *rec
	return nil
}

func (p *proofInMemory) GetByCode(_ context.Context, code string) (*domain.ProofRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, row := range p.rows {
		if row.Active && row.VerificationCode == code {
			res := row
			return &res, nil
		}
	}
	return nil, ErrProofNotFound
}

func (p *proofInMemory) CodeInUse(_ context.Context, code string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, row := range p.rows {
		if row.Active && row.VerificationCode == code {
			return true, nil
		}
	}
	return false, nil
}
