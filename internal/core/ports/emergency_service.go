package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// EmergencyRequest is a dual-authorized request to bypass the normal consent flow.
type EmergencyRequest struct {
	SubjectID     string
	RequesterID   string
	EmergencyType string
	Justification string
	Primary       domain.Authorizer
	Secondary     domain.Authorizer
	NextOfKin     *domain.NextOfKin
	Duration      time.Duration
}

// EmergencyService grants and revokes time-boxed emergency overrides.
type EmergencyService interface {
	Grant(ctx context.Context, req EmergencyRequest) (*domain.EmergencyConsentRecord, *domain.Credential, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}
