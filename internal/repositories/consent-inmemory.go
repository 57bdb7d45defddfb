package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/core/domain"
)

type consentInMemory struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]domain.ConsentRecord
	creds *CredentialInMemory
}

// NewConsentInMemory returns a ConsentRepository implemented in memory,
// convenient for testing. creds receives credentials persisted by transitions.
func NewConsentInMemory(creds *CredentialInMemory) *consentInMemory {
	return &consentInMemory{rows: make(map[uuid.UUID]domain.ConsentRecord), creds: creds}
}

func (c *consentInMemory) GetCurrent(_ context.Context, subjectID, requesterID string) (*domain.ConsentRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current(subjectID, requesterID)
}

func (c *consentInMemory) GetByID(_ context.Context, id uuid.UUID) (*domain.ConsentRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if row, found := c.rows[id]; found {
		return &row, nil
	}
	return nil, ErrConsentNotFound
}

// GetByCredentialID returns the newest row carrying the credential, matching
// the postgres repository's ordering.
func (c *consentInMemory) GetByCredentialID(_ context.Context, credentialID uuid.UUID) (*domain.ConsentRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res *domain.ConsentRecord
	for _, row := range c.rows {
		if row.CredentialID == nil || *row.CredentialID != credentialID {
			continue
		}
		row := row
		if res == nil || row.CreatedAt.After(res.CreatedAt) {
			res = &row
		}
	}
	if res == nil {
		return nil, ErrConsentNotFound
	}
	return res, nil
}

func (c *consentInMemory) Transition(_ context.Context, prev, next *domain.ConsentRecord, cred *domain.Credential) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.current(next.SubjectID, next.RequesterID)
	switch {
	case prev == nil:
		if err == nil {
			return ErrConcurrentModification
		}
	case err != nil, current.ID != prev.ID, current.Status != prev.Status:
		return ErrConcurrentModification
	}

	if prev != nil {
		row := c.rows[prev.ID]
		row.SupersededBy = &next.ID
		c.rows[prev.ID] = row
	}
	if cred != nil {
		c.creds.mu.Lock()
		c.creds.save(cred)
		c.creds.mu.Unlock()
	}
	c.rows[next.ID] = *next
	if next.Status == domain.ConsentRevoked && prev != nil && prev.CredentialID != nil {
		c.creds.mu.Lock()
		c.creds.revoke(*prev.CredentialID, time.Now().UTC())
		c.creds.mu.Unlock()
	}
	return nil
}

func (c *consentInMemory) current(subjectID, requesterID string) (*domain.ConsentRecord, error) {
	for _, row := range c.rows {
		if row.SubjectID == subjectID && row.RequesterID == requesterID && row.SupersededBy == nil {
			res := row
			return &res, nil
		}
	}
	return nil, ErrConsentNotFound
}
