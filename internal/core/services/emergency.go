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
	"github.com/healthlock/consent-node/internal/ratelimit"
	"github.com/healthlock/consent-node/internal/repositories"
)

// allowedDurations is the closed set of emergency grant lifetimes.
var allowedDurations = map[time.Duration]bool{
	1 * time.Hour:  true,
	6 * time.Hour:  true,
	12 * time.Hour: true,
	24 * time.Hour: true,
}

// emergencyLimitations travel on every emergency credential so downstream
// consumers can tell override access from consented access.
var emergencyLimitations = []string{"emergency-access-only", "no-delegation"}

type emergencyService struct {
	emergencies ports.EmergencyRepository
	staff       ports.StaffRepository
	identity    ports.IdentityService
	issuer      ports.IssuerService
	auditSink   audit.Sink
	limiter     *ratelimit.Limiter
	policy      config.Policy
	now         func() time.Time
}

// NewEmergency creates the emergency override service
func NewEmergency(emergencies ports.EmergencyRepository, staff ports.StaffRepository, identity ports.IdentityService, issuer ports.IssuerService, auditSink audit.Sink, limiter *ratelimit.Limiter, policy config.Policy) ports.EmergencyService {
	return &emergencyService{
		emergencies: emergencies,
		staff:       staff,
		identity:    identity,
		issuer:      issuer,
		auditSink:   auditSink,
		limiter:     limiter,
		policy:      policy,
		now:         time.Now,
	}
}

// Grant validates a dual-authorized override request and, only once every check
// passes, persists the grant and its credential atomically. A failed check
// persists nothing, and the rejection is mirrored to the audit trail.
func (s *emergencyService) Grant(ctx context.Context, req ports.EmergencyRequest) (*domain.EmergencyConsentRecord, *domain.Credential, error) {
	if !s.limiter.Allow(req.RequesterID) {
		s.auditSink.Emit(ctx, audit.NewEvent(req.RequesterID, audit.ActionRateLimited, req.SubjectID, audit.OutcomeFailure,
			map[string]string{"operation": "emergency.grant"}))
		return nil, nil, ErrRateLimited
	}

	if err := s.validate(ctx, req); err != nil {
		s.reject(ctx, req, err)
		return nil, nil, err
	}

	identity, err := s.identity.EnsureIdentity(ctx, req.SubjectID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	rec := &domain.EmergencyConsentRecord{
		ID:            uuid.New(),
		SubjectID:     req.SubjectID,
		RequesterID:   req.RequesterID,
		EmergencyType: req.EmergencyType,
		Justification: req.Justification,
		Primary:       req.Primary,
		Secondary:     req.Secondary,
		NextOfKin:     req.NextOfKin,
		GrantedAt:     now,
		ExpiresAt:     now.Add(req.Duration),
		Limitations:   emergencyLimitations,
	}

	cred, err := s.issuer.Mint(ctx, ports.IssueRequest{
		SubjectDID:     identity.DID,
		AudienceID:     req.RequesterID,
		RecordPointers: []string{"emergency:" + req.SubjectID},
		Scope:          "emergency",
		Limitations:    emergencyLimitations,
		TTL:            req.Duration,
		Authorization:  ports.Authorization{Kind: ports.AuthEmergency, EmergencyGrant: rec},
	})
	if err != nil {
		return nil, nil, err
	}
	rec.CredentialID = &cred.ID

	wctx, cancel := storeCtx(ctx, s.policy.StoreTimeout)
	defer cancel()
	if err := s.emergencies.Save(wctx, rec, cred); err != nil {
		return nil, nil, storeErr(err)
	}

	if req.NextOfKin != nil {
		// delivery is a downstream collaborator; the trail records the intent
		log.Info(ctx, "next of kin notification queued",
			"emergency", rec.ID, "relation", req.NextOfKin.Relation)
	}

	s.auditSink.Emit(ctx, audit.NewEvent(req.RequesterID, audit.ActionEmergencyGranted, req.SubjectID, audit.OutcomeSuccess,
		map[string]string{
			"emergencyId":  rec.ID.String(),
			"credentialId": cred.ID.String(),
			"type":         req.EmergencyType,
			"primary":      req.Primary.ID,
			"secondary":    req.Secondary.ID,
			"expiresAt":    rec.ExpiresAt.Format(time.RFC3339),
		}))
	return rec, cred, nil
}

// validate runs the checks in a fixed order: justification length, distinct
// authorizers, both on duty, then the duration whitelist. The first failure wins.
func (s *emergencyService) validate(ctx context.Context, req ports.EmergencyRequest) error {
	if len(req.Justification) < domain.MinJustificationLength {
		return emergencyErr(EmergencyJustificationTooShort,
			"justification is %d characters, minimum is %d", len(req.Justification), domain.MinJustificationLength)
	}
	if req.Primary.ID == "" || req.Secondary.ID == "" {
		return emergencyErr(EmergencyDuplicateAuthorizer, "two authorizers are required")
	}
	if req.Primary.ID == req.Secondary.ID {
		return emergencyErr(EmergencyDuplicateAuthorizer, "authorizer %s attested twice", req.Primary.ID)
	}

	primary, err := s.lookupStaff(ctx, req.Primary.ID, req.RequesterID)
	if err != nil {
		return err
	}
	secondary, err := s.lookupStaff(ctx, req.Secondary.ID, req.RequesterID)
	if err != nil {
		return err
	}
	// the admin fallback covers an off-duty primary only; the second attestation
	// must always come from staff actually on shift
	if !primary.OnDuty && !primary.IsAdmin() {
		return emergencyErr(EmergencyStaffNotOnDuty, "primary authorizer %s is not on duty", primary.ID)
	}
	if !secondary.OnDuty {
		return emergencyErr(EmergencyStaffNotOnDuty, "secondary authorizer %s is not on duty", secondary.ID)
	}

	if !allowedDurations[req.Duration] {
		return emergencyErr(EmergencyDurationNotAllowed, "duration %s is not an allowed grant lifetime", req.Duration)
	}
	return nil
}

func (s *emergencyService) lookupStaff(ctx context.Context, staffID, orgID string) (*domain.StaffMember, error) {
	rctx, cancel := storeCtx(ctx, s.policy.StoreTimeout)
	defer cancel()

	member, err := s.staff.GetByID(rctx, staffID)
	if errors.Is(err, repositories.ErrStaffNotFound) {
		return nil, emergencyErr(EmergencyStaffNotOnDuty, "authorizer %s is not registered staff", staffID)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if member.OrgID != orgID {
		return nil, emergencyErr(EmergencyStaffNotOnDuty, "authorizer %s does not belong to %s", staffID, orgID)
	}
	return member, nil
}

// Revoke terminates a grant before its expiry. Terminal; a revoked or expired
// grant cannot be reactivated.
func (s *emergencyService) Revoke(ctx context.Context, id uuid.UUID) error {
	rctx, cancel := storeCtx(ctx, s.policy.StoreTimeout)
	defer cancel()

	rec, err := s.emergencies.GetByID(rctx, id)
	if err != nil {
		return storeErr(err)
	}

	now := s.now().UTC()
	if !rec.Active(now) {
		return emergencyErr(EmergencyGrantNotActive, "grant %s is no longer active", id)
	}

	if err := s.emergencies.Revoke(rctx, id, now); err != nil {
		return storeErr(err)
	}

	s.auditSink.Emit(ctx, audit.NewEvent(rec.RequesterID, audit.ActionEmergencyRevoked, rec.SubjectID, audit.OutcomeSuccess,
		map[string]string{"emergencyId": id.String()}))
	return nil
}

func (s *emergencyService) reject(ctx context.Context, req ports.EmergencyRequest, cause error) {
	detail := map[string]string{"type": req.EmergencyType}
	var ee *EmergencyError
	if errors.As(cause, &ee) {
		detail["rejection"] = string(ee.Kind)
	}
	s.auditSink.Emit(ctx, audit.NewEvent(req.RequesterID, audit.ActionEmergencyRejected, req.SubjectID, audit.OutcomeFailure, detail))
}
