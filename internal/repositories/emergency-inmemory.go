package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/core/domain"
)

type emergencyInMemory struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]domain.EmergencyConsentRecord
	creds *CredentialInMemory
}

// NewEmergencyInMemory returns an EmergencyRepository implemented in memory,
// convenient for testing
func NewEmergencyInMemory(creds *CredentialInMemory) *emergencyInMemory {
	return &emergencyInMemory{rows: make(map[uuid.UUID]domain.EmergencyConsentRecord), creds: creds}
}

func (e *emergencyInMemory) Save(_ context.Context, rec *domain.EmergencyConsentRecord, cred *domain.Credential) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cred != nil {
		e.creds.mu.Lock()
		e.creds.save(cred)
		e.creds.mu.Unlock()
	}
	e.rows[rec.ID] = *rec
	return nil
}

func (e *emergencyInMemory) GetByID(_ context.Context, id uuid.UUID) (*domain.EmergencyConsentRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, found := e.rows[id]; found {
		return &rec, nil
	}
	return nil, ErrEmergencyNotFound
}

func (e *emergencyInMemory) GetByCredentialID(_ context.Context, credentialID uuid.UUID) (*domain.EmergencyConsentRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.rows {
		if rec.CredentialID != nil && *rec.CredentialID == credentialID {
			res := rec
			return &res, nil
		}
	}
	return nil, ErrEmergencyNotFound
}

func (e *emergencyInMemory) Revoke(_ context.Context, id uuid.UUID, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, found := e.rows[id]
	if !found || rec.RevokedAt != nil {
		return ErrEmergencyNotFound
	}
	rec.RevokedAt = &at
	e.rows[id] = rec
	if rec.CredentialID != nil {
		e.creds.mu.Lock()
		e.creds.revoke(*rec.CredentialID, at)
		e.creds.mu.Unlock()
	}
	return nil
}
