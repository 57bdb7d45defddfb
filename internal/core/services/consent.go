package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/audit"
	"github.com/healthlock/consent-node/internal/config"
	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/log"
	"github.com/healthlock/consent-node/internal/repositories"
)

type consentService struct {
	consents  ports.ConsentRepository
	identity  ports.IdentityService
	issuer    ports.IssuerService
	auditSink audit.Sink
	policy    config.Policy
	now       func() time.Time
}

// NewConsent creates the consent lifecycle service
func NewConsent(consents ports.ConsentRepository, identity ports.IdentityService, issuer ports.IssuerService, auditSink audit.Sink, policy config.Policy) ports.ConsentService {
	return &consentService{
		consents:  consents,
		identity:  identity,
		issuer:    issuer,
		auditSink: auditSink,
		policy:    policy,
		now:       time.Now,
	}
}

// Request opens a consent request for the pair. Repeating a request while one is
// already pending returns the pending row unchanged rather than stacking a second
// one. A requester whose previous request was denied or revoked may ask again.
func (s *consentService) Request(ctx context.Context, subjectID, requesterID, reason string) (*domain.ConsentRecord, error) {
	prev, err := s.current(ctx, subjectID, requesterID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if prev != nil {
		switch prev.EffectiveStatus(now) {
		case domain.ConsentRequested:
			return s.derived(prev), nil
		case domain.ConsentApproved:
			return nil, &InvalidTransitionError{From: domain.ConsentApproved, Attempted: domain.ConsentRequested}
		}
	}

	next := &domain.ConsentRecord{
		ID:          uuid.New(),
		SubjectID:   subjectID,
		RequesterID: requesterID,
		Status:      domain.ConsentRequested,
		Reason:      reason,
		CreatedAt:   now,
	}
	if err := s.transition(ctx, prev, next, nil); err != nil {
		return nil, err
	}

	s.auditSink.Emit(ctx, audit.NewEvent(requesterID, audit.ActionConsentRequested, subjectID, audit.OutcomeSuccess,
		map[string]string{"consentId": next.ID.String()}))
	return next, nil
}

// Approve moves a pending request to approved and mints the access credential in
// the same transaction: the approval row and the credential land together or not
// at all.
func (s *consentService) Approve(ctx context.Context, req ports.ApproveRequest) (*domain.ConsentRecord, *domain.Credential, error) {
	prev, err := s.current(ctx, req.SubjectID, req.RequesterID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	if prev == nil || prev.EffectiveStatus(now) != domain.ConsentRequested {
		return nil, nil, &InvalidTransitionError{From: s.statusOf(prev, now), Attempted: domain.ConsentApproved}
	}

	identity, err := s.identity.EnsureIdentity(ctx, req.SubjectID)
	if err != nil {
		return nil, nil, err
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = s.policy.DefaultConsentTTL
	}

	nextID := uuid.New()
	cred, err := s.issuer.Mint(ctx, ports.IssueRequest{
		SubjectDID:     identity.DID,
		AudienceID:     req.RequesterID,
		RecordPointers: req.RecordPointers,
		Scope:          req.Scope,
		TTL:            ttl,
		Authorization:  ports.Authorization{Kind: ports.AuthSubject, SubjectKey: req.SubjectID},
	})
	if err != nil {
		return nil, nil, err
	}

	expires := now.Add(ttl)
	next := &domain.ConsentRecord{
		ID:           nextID,
		SubjectID:    req.SubjectID,
		RequesterID:  req.RequesterID,
		Status:       domain.ConsentApproved,
		Reason:       prev.Reason,
		GrantedBy:    req.GrantedBy,
		CreatedAt:    now,
		ExpiresAt:    &expires,
		CredentialID: &cred.ID,
	}
	if err := s.transition(ctx, prev, next, cred); err != nil {
		return nil, nil, err
	}

	s.auditSink.Emit(ctx, audit.NewEvent(req.SubjectID, audit.ActionConsentApproved, req.RequesterID, audit.OutcomeSuccess,
		map[string]string{"consentId": next.ID.String(), "credentialId": cred.ID.String()}))
	s.auditSink.Emit(ctx, audit.NewEvent(identity.DID, audit.ActionCredentialIssued, cred.ID.String(), audit.OutcomeSuccess,
		map[string]string{"audience": req.RequesterID}))
	return next, cred, nil
}

// Deny closes a pending request. Only a pending request can be denied.
func (s *consentService) Deny(ctx context.Context, subjectID, requesterID, reason string) (*domain.ConsentRecord, error) {
	prev, err := s.current(ctx, subjectID, requesterID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if prev == nil || prev.EffectiveStatus(now) != domain.ConsentRequested {
		return nil, &InvalidTransitionError{From: s.statusOf(prev, now), Attempted: domain.ConsentDenied}
	}

	next := &domain.ConsentRecord{
		ID:          uuid.New(),
		SubjectID:   subjectID,
		RequesterID: requesterID,
		Status:      domain.ConsentDenied,
		Reason:      reason,
		CreatedAt:   now,
	}
	if err := s.transition(ctx, prev, next, nil); err != nil {
		return nil, err
	}

	s.auditSink.Emit(ctx, audit.NewEvent(subjectID, audit.ActionConsentDenied, requesterID, audit.OutcomeSuccess,
		map[string]string{"consentId": next.ID.String()}))
	return next, nil
}

// Revoke withdraws a live approval and kills its credential in the same
// transaction. Revoking an already expired approval is rejected, not silently
// collapsed: the credential is already dead and the ledger should say EXPIRED.
func (s *consentService) Revoke(ctx context.Context, subjectID, requesterID string) (*domain.ConsentRecord, error) {
	prev, err := s.current(ctx, subjectID, requesterID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if prev == nil || prev.EffectiveStatus(now) != domain.ConsentApproved {
		return nil, &InvalidTransitionError{From: s.statusOf(prev, now), Attempted: domain.ConsentRevoked}
	}

	next := &domain.ConsentRecord{
		ID:           uuid.New(),
		SubjectID:    subjectID,
		RequesterID:  requesterID,
		Status:       domain.ConsentRevoked,
		Reason:       prev.Reason,
		CreatedAt:    now,
		CredentialID: prev.CredentialID,
	}
	if err := s.transition(ctx, prev, next, nil); err != nil {
		return nil, err
	}

	log.Info(ctx, "consent revoked", "subject", subjectID, "requester", requesterID)
	s.auditSink.Emit(ctx, audit.NewEvent(subjectID, audit.ActionConsentRevoked, requesterID, audit.OutcomeSuccess,
		map[string]string{"consentId": next.ID.String()}))
	return next, nil
}

// Current returns the pair's current row with its read-time status applied, or
// ErrConsentNotFound for a pair with no history.
func (s *consentService) Current(ctx context.Context, subjectID, requesterID string) (*domain.ConsentRecord, error) {
	rec, err := s.current(ctx, subjectID, requesterID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, repositories.ErrConsentNotFound
	}
	return s.derived(rec), nil
}

// current fetches the current ledger row, mapping the no-history case to nil.
func (s *consentService) current(ctx context.Context, subjectID, requesterID string) (*domain.ConsentRecord, error) {
	rctx, cancel := storeCtx(ctx, s.policy.StoreTimeout)
	defer cancel()

	rec, err := s.consents.GetCurrent(rctx, subjectID, requesterID)
	if errors.Is(err, repositories.ErrConsentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return rec, nil
}

func (s *consentService) transition(ctx context.Context, prev, next *domain.ConsentRecord, cred *domain.Credential) error {
	wctx, cancel := storeCtx(ctx, s.policy.StoreTimeout)
	defer cancel()

	err := s.consents.Transition(wctx, prev, next, cred)
	if errors.Is(err, repositories.ErrConcurrentModification) {
		// the pair moved under us; surface as an invalid transition from whatever
		// is current now rather than a retry loop
		cur, curErr := s.consents.GetCurrent(wctx, next.SubjectID, next.RequesterID)
		from := domain.ConsentStatus("NONE")
		if curErr == nil {
			from = cur.EffectiveStatus(s.now())
		}
		return &InvalidTransitionError{From: from, Attempted: next.Status}
	}
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// derived returns a copy with the read-time status applied, so expiry is visible
// to callers without a write.
func (s *consentService) derived(rec *domain.ConsentRecord) *domain.ConsentRecord {
	out := *rec
	out.Status = rec.EffectiveStatus(s.now())
	return &out
}

func (s *consentService) statusOf(rec *domain.ConsentRecord, now time.Time) domain.ConsentStatus {
	if rec == nil {
		return domain.ConsentStatus("NONE")
	}
	return rec.EffectiveStatus(now)
}
