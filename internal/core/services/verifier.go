package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/audit"
	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/repositories"
)

type verifierService struct {
	credentials  ports.CredentialRepository
	consents     ports.ConsentRepository
	emergencies  ports.EmergencyRepository
	auditSink    audit.Sink
	storeTimeout time.Duration
	now          func() time.Time
}

// NewVerifier creates the credential verifier service
func NewVerifier(credentials ports.CredentialRepository, consents ports.ConsentRepository, emergencies ports.EmergencyRepository, auditSink audit.Sink, storeTimeout time.Duration) ports.VerifierService {
	return &verifierService{
		credentials:  credentials,
		consents:     consents,
		emergencies:  emergencies,
		auditSink:    auditSink,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// Verify runs the full check pipeline over a presented token and returns the
// authorized record pointers. Checks run in a fixed order so a caller always
// learns the first applicable rejection: signature, expiry, audience, revocation,
// then consent liveness. Every attempt is mirrored to the audit trail.
func (s *verifierService) Verify(ctx context.Context, token, expectedAudience string) ([]string, error) {
	claims, err := s.parse(token)
	if err != nil {
		s.mirror(ctx, expectedAudience, "", audit.OutcomeFailure, err)
		return nil, err
	}

	credID := claims.ID
	now := s.now()
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		err = credErr(CredentialExpired, "credential lifetime elapsed")
		s.mirror(ctx, expectedAudience, credID, audit.OutcomeFailure, err)
		return nil, err
	}

	if !s.audienceMatches(claims.Audience, expectedAudience) {
		err = credErr(CredentialAudienceMismatch, "credential is not addressed to %s", expectedAudience)
		s.mirror(ctx, expectedAudience, credID, audit.OutcomeFailure, err)
		return nil, err
	}

	if err := s.checkRevocation(ctx, claims, now); err != nil {
		s.mirror(ctx, expectedAudience, credID, audit.OutcomeFailure, err)
		return nil, err
	}

	s.mirror(ctx, expectedAudience, credID, audit.OutcomeSuccess, nil)
	return claims.RecordPointers, nil
}

// parse checks structure and signature only. The issuer DID is self-certifying,
// so the verification key is derived from the iss claim without a lookup.
func (s *verifierService) parse(token string) (*credentialClaims, error) {
	claims := &credentialClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil || iss == "" {
			return nil, fmt.Errorf("missing issuer claim")
		}
		return PublicKeyFromDID(iss)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		// expiry is checked explicitly so the pipeline order is stable
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, credErr(CredentialBadSignature, "signature check failed")
		}
		return nil, credErr(CredentialMalformed, "parsing token: %v", err)
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil, credErr(CredentialMalformed, "token carries no credential id")
	}
	return claims, nil
}

func (s *verifierService) audienceMatches(aud jwt.ClaimStrings, expected string) bool {
	for _, a := range aud {
		if a == expected {
			return true
		}
	}
	return false
}

// checkRevocation consults the authoritative stores: the credential row's
// monotonic revoked flag, then the liveness of the owning consent or emergency
// grant. A revoked consent kills its credential even if the row flip raced.
func (s *verifierService) checkRevocation(ctx context.Context, claims *credentialClaims, now time.Time) error {
	credID := uuid.MustParse(claims.ID)

	rctx, cancel := storeCtx(ctx, s.storeTimeout)
	defer cancel()

	cred, err := s.credentials.GetByID(rctx, credID)
	if err != nil {
		if errors.Is(err, repositories.ErrCredentialNotFound) {
			return credErr(CredentialRevoked, "credential %s is not on record", credID)
		}
		return storeErr(err)
	}
	if cred.Revoked {
		return credErr(CredentialRevoked, "credential %s has been revoked", credID)
	}

	if consent, err := s.consents.GetByCredentialID(rctx, credID); err == nil {
		if st := consent.EffectiveStatus(now); st != domain.ConsentApproved {
			return credErr(CredentialRevoked, "underlying consent is %s", st)
		}
		return nil
	} else if !errors.Is(err, repositories.ErrConsentNotFound) {
		return storeErr(err)
	}

	if grant, err := s.emergencies.GetByCredentialID(rctx, credID); err == nil {
		if !grant.Active(now) {
			return credErr(CredentialRevoked, "underlying emergency grant is no longer active")
		}
		return nil
	} else if !errors.Is(err, repositories.ErrEmergencyNotFound) {
		return storeErr(err)
	}

	// credential exists but no ledger row owns it; treat as revoked rather than
	// trusting an orphan
	return credErr(CredentialRevoked, "credential %s has no owning grant", credID)
}

func (s *verifierService) mirror(ctx context.Context, actor, credID, outcome string, cause error) {
	detail := map[string]string{}
	if cause != nil {
		var ce *CredentialError
		if errors.As(cause, &ce) {
			detail["rejection"] = string(ce.Kind)
		} else {
			detail["error"] = cause.Error()
		}
	}
	s.auditSink.Emit(ctx, audit.NewEvent(actor, audit.ActionCredentialVerify, credID, outcome, detail))
}
