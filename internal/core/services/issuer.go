package services

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/config"
	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/kms"
)

// credentialClaims is the wire shape of a credential token: a compact signed
// assertion of three parts (header, claims, signature) verifiable by any holder
// of the issuer's public key.
type credentialClaims struct {
	RecordPointers []string `json:"recordPointers"`
	Scope          string   `json:"scope,omitempty"`
	Limitations    []string `json:"limitations,omitempty"`
	jwt.RegisteredClaims
}

type issuerService struct {
	identities ports.IdentityRepository
	keyStore   *kms.KMS
	policy     config.Policy
	now        func() time.Time
}

// NewIssuer creates the credential issuer service
func NewIssuer(identities ports.IdentityRepository, keyStore *kms.KMS, policy config.Policy) ports.IssuerService {
	return &issuerService{identities: identities, keyStore: keyStore, policy: policy, now: time.Now}
}

// Mint validates the issuance preconditions and builds a signed credential bound
// to issuer=subject DID, audience and claims. The caller persists it atomically
// with its owning ledger row.
func (s *issuerService) Mint(ctx context.Context, req ports.IssueRequest) (*domain.Credential, error) {
	if req.TTL < s.policy.MinCredentialTTL || req.TTL > s.policy.MaxCredentialTTL {
		return nil, credErr(CredentialPolicyViolation,
			"ttl %s outside policy range [%s, %s]", req.TTL, s.policy.MinCredentialTTL, s.policy.MaxCredentialTTL)
	}
	if err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	rctx, cancel := storeCtx(ctx, s.policy.StoreTimeout)
	defer cancel()
	identity, err := s.identities.GetByDID(rctx, req.SubjectDID)
	if err != nil {
		return nil, credErr(CredentialNotAuthorized, "no custodial identity for %s", req.SubjectDID)
	}

	now := s.now().UTC()
	cred := &domain.Credential{
		ID:             uuid.New(),
		SubjectDID:     req.SubjectDID,
		IssuerDID:      req.SubjectDID,
		AudienceID:     req.AudienceID,
		RecordPointers: req.RecordPointers,
		Scope:          req.Scope,
		Limitations:    req.Limitations,
		IssuedAt:       now,
		ExpiresAt:      now.Add(req.TTL),
	}

	token, err := s.sign(ctx, identity, cred)
	if err != nil {
		return nil, err
	}
	cred.SignedToken = token
	return cred, nil
}

// authorize checks the caller's proof: the subject itself for the normal consent
// path, a validated emergency grant for the override path.
func (s *issuerService) authorize(ctx context.Context, req ports.IssueRequest) error {
	auth := req.Authorization
	switch auth.Kind {
	case ports.AuthSubject:
		rctx, cancel := storeCtx(ctx, s.policy.StoreTimeout)
		defer cancel()
		identity, err := s.identities.GetBySubjectKey(rctx, auth.SubjectKey)
		if err != nil || identity.DID != req.SubjectDID {
			return credErr(CredentialNotAuthorized, "caller does not hold subject identity %s", req.SubjectDID)
		}
		return nil
	case ports.AuthEmergency:
		grant := auth.EmergencyGrant
		if grant == nil || !grant.Active(s.now()) {
			return credErr(CredentialNotAuthorized, "emergency grant is missing, revoked or expired")
		}
		if grant.RequesterID != req.AudienceID {
			return credErr(CredentialNotAuthorized, "emergency grant is not held by audience %s", req.AudienceID)
		}
		return nil
	default:
		return credErr(CredentialNotAuthorized, "unknown authorization kind %q", auth.Kind)
	}
}

// sign assembles the three-part token. The signature is produced inside the key
// custody boundary; the private key never reaches this service.
func (s *issuerService) sign(ctx context.Context, identity *domain.Identity, cred *domain.Credential) (string, error) {
	claims := credentialClaims{
		RecordPointers: cred.RecordPointers,
		Scope:          cred.Scope,
		Limitations:    cred.Limitations,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cred.IssuerDID,
			Subject:   cred.SubjectDID,
			Audience:  jwt.ClaimStrings{cred.AudienceID},
			ID:        cred.ID.String(),
			IssuedAt:  jwt.NewNumericDate(cred.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(cred.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signingString, err := token.SigningString()
	if err != nil {
		return "", credErr(CredentialPolicyViolation, "building token: %v", err)
	}

	sig, err := s.keyStore.Sign(ctx, kms.KeyID{Type: kms.KeyTypeEd25519, ID: identity.KeyID}, []byte(signingString))
	if err != nil {
		return "", &KeyGenFailureError{Err: err}
	}
	return signingString + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}
