package ports

import (
	"context"
	"time"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// ApproveRequest carries the parameters of a consent approval.
type ApproveRequest struct {
	SubjectID      string
	RequesterID    string
	GrantedBy      string
	TTL            time.Duration
	RecordPointers []string
	Scope          string
}

// ConsentService drives the request/approve/deny/revoke lifecycle per
// (subject, requester) pair.
type ConsentService interface {
	Request(ctx context.Context, subjectID, requesterID, reason string) (*domain.ConsentRecord, error)
	Approve(ctx context.Context, req ApproveRequest) (*domain.ConsentRecord, *domain.Credential, error)
	Deny(ctx context.Context, subjectID, requesterID, reason string) (*domain.ConsentRecord, error)
	Revoke(ctx context.Context, subjectID, requesterID string) (*domain.ConsentRecord, error)
	Current(ctx context.Context, subjectID, requesterID string) (*domain.ConsentRecord, error)
}
