package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// CredentialInMemory is a CredentialRepository implemented in memory, convenient
// for testing. The in-memory ledger repositories share one instance so that
// transitions land credentials in the same store.
type CredentialInMemory struct {
	mu    sync.RWMutex
	creds map[uuid.UUID]domain.Credential
}

// NewCredentialInMemory returns an empty in-memory credential repository
func NewCredentialInMemory() *CredentialInMemory {
	return &CredentialInMemory{creds: make(map[uuid.UUID]domain.Credential)}
}

func (c *CredentialInMemory) Save(_ context.Context, cred *domain.Credential) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.save(cred)
	return nil
}

func (c *CredentialInMemory) GetByID(_ context.Context, id uuid.UUID) (*domain.Credential, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cred, found := c.creds[id]; found {
		return &cred, nil
	}
	return nil, ErrCredentialNotFound
}

func (c *CredentialInMemory) Revoke(_ context.Context, id uuid.UUID, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoke(id, at)
	return nil
}

// save and revoke are the lock-free halves used by the in-memory ledger
// repositories inside their own critical sections.
func (c *CredentialInMemory) save(cred *domain.Credential) {
	c.creds[cred.ID] = *cred
}

func (c *CredentialInMemory) revoke(id uuid.UUID, at time.Time) {
	cred, found := c.creds[id]
	if !found || cred.Revoked {
		return
	}
	cred.Revoked = true
	cred.RevokedAt = &at
	c.creds[id] = cred
}
