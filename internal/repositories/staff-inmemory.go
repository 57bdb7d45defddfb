package repositories

import (
	"context"
	"sync"

	"github.com/healthlock/consent-node/internal/core/domain"
)

type staffInMemory struct {
	mu    sync.RWMutex
	staff map[string]domain.StaffMember
}

// NewStaffInMemory returns a StaffRepository implemented in memory, convenient
// for testing
func NewStaffInMemory() *staffInMemory {
	return &staffInMemory{staff: make(map[string]domain.StaffMember)}
}

// Register adds a staff member to the in-memory roster
func (s *staffInMemory) Register(member domain.StaffMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff[member.ID] = member
}

func (s *staffInMemory) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if member, found := s.staff[id]; found {
		return &member, nil
	}
	return nil, ErrStaffNotFound
}
