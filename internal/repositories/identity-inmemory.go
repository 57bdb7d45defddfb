package repositories

import (
	"context"
	"sync"

	"github.com/healthlock/consent-node/internal/core/domain"
)

type identityInMemory struct {
	mu       sync.RWMutex
	bySubKey map[string]domain.Identity
	byDID    map[string]domain.Identity
}

// NewIdentityInMemory returns an IdentityRepository implemented in memory,
// convenient for testing
func NewIdentityInMemory() *identityInMemory {
	return &identityInMemory{
		bySubKey: make(map[string]domain.Identity),
		byDID:    make(map[string]domain.Identity),
	}
}

func (i *identityInMemory) Save(_ context.Context, identity *domain.Identity) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.bySubKey[identity.SubjectKey] = *identity
	i.byDID[identity.DID] = *identity
	return nil
}

func (i *identityInMemory) GetBySubjectKey(_ context.Context, subjectKey string) (*domain.Identity, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if identity, found := i.bySubKey[subjectKey]; found {
		return &identity, nil
	}
	return nil, ErrIdentityNotFound
}

func (i *identityInMemory) GetByDID(_ context.Context, did string) (*domain.Identity, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if identity, found := i.byDID[did]; found {
		return &identity, nil
	}
	return nil, ErrIdentityNotFound
}
