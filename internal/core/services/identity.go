package services

import (
	"context"
	"errors"
	"time"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/kms"
	"github.com/healthlock/consent-node/internal/log"
	"github.com/healthlock/consent-node/internal/repositories"
)

type identityService struct {
	repo         ports.IdentityRepository
	keyStore     *kms.KMS
	storeTimeout time.Duration
}

// NewIdentity creates the identity custody service
func NewIdentity(repo ports.IdentityRepository, keyStore *kms.KMS, storeTimeout time.Duration) ports.IdentityService {
	return &identityService{repo: repo, keyStore: keyStore, storeTimeout: storeTimeout}
}

// EnsureIdentity returns the existing identity for the subject key or generates
// a DID and keypair on first call. An existing keypair is never overwritten.
func (s *identityService) EnsureIdentity(ctx context.Context, subjectKey string) (*domain.Identity, error) {
	rctx, cancel := storeCtx(ctx, s.storeTimeout)
	defer cancel()

	existing, err := s.repo.GetBySubjectKey(rctx, subjectKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrIdentityNotFound) {
		return nil, storeErr(err)
	}

	keyID, err := s.keyStore.CreateKey(kms.KeyTypeEd25519, subjectKey)
	if errors.Is(err, kms.ErrKeyExists) {
		// a previous run generated the key but lost the race or crashed before
		// persisting the identity row; reuse it
		keyID, err = s.keyStore.KeyByIdentity(ctx, kms.KeyTypeEd25519, subjectKey)
	}
	if err != nil {
		return nil, &KeyGenFailureError{Err: err}
	}

	pub, err := s.keyStore.PublicKey(keyID)
	if err != nil {
		return nil, &KeyGenFailureError{Err: err}
	}

	identity := &domain.Identity{
		SubjectKey: subjectKey,
		DID:        DIDFromPublicKey(pub),
		PublicKey:  pub,
		KeyID:      keyID.ID,
		CreatedAt:  time.Now().UTC(),
	}

	wctx, cancel := storeCtx(ctx, s.storeTimeout)
	defer cancel()
	if err := s.repo.Save(wctx, identity); err != nil {
		// concurrent EnsureIdentity for the same subject: the first insert wins
		if existing, getErr := s.repo.GetBySubjectKey(wctx, subjectKey); getErr == nil {
			return existing, nil
		}
		return nil, storeErr(err)
	}

	log.Info(ctx, "identity created", "did", identity.DID)
	return identity, nil
}
