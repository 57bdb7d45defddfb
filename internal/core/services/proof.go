package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/audit"
	"github.com/healthlock/consent-node/internal/config"
	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/kms"
	"github.com/healthlock/consent-node/internal/log"
	"github.com/healthlock/consent-node/internal/ratelimit"
	"github.com/healthlock/consent-node/internal/repositories"
)

// engineIdentity is the key custody identity under which the node signs offline
// proof payloads.
const engineIdentity = "consent-engine"

const codeDigits = 6

// maxCodeDraws bounds the redraw loop on code collisions. With a six digit space
// and realistic active-proof counts the loop terminates on the first draw almost
// always.
const maxCodeDraws = 32

// offlineEnvelope is the self-contained transportable form of a proof. It carries
// everything the offline verifier needs and nothing derived from the source text.
type offlineEnvelope struct {
	Code       string          `json:"code"`
	Statement  string          `json:"statement"`
	Category   domain.Category `json:"category"`
	Contagious bool            `json:"contagious"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

type proofService struct {
	proofs    ports.ProofRepository
	keyStore  *kms.KMS
	auditSink audit.Sink
	limiter   *ratelimit.Limiter
	policy    config.Policy
	engineKey kms.KeyID
	enginePub ed25519.PublicKey
	now       func() time.Time
}

// NewProof creates the proof service. It establishes the engine signing identity
// on first construction and reuses it afterwards.
func NewProof(ctx context.Context, proofs ports.ProofRepository, keyStore *kms.KMS, auditSink audit.Sink, limiter *ratelimit.Limiter, policy config.Policy) (ports.ProofService, error) {
	keyID, pub, err := ensureEngineKey(ctx, keyStore)
	if err != nil {
		return nil, err
	}
	return &proofService{
		proofs:    proofs,
		keyStore:  keyStore,
		auditSink: auditSink,
		limiter:   limiter,
		policy:    policy,
		engineKey: keyID,
		enginePub: pub,
		now:       time.Now,
	}, nil
}

func ensureEngineKey(ctx context.Context, keyStore *kms.KMS) (kms.KeyID, ed25519.PublicKey, error) {
	keyID, err := keyStore.CreateKey(kms.KeyTypeEd25519, engineIdentity)
	if errors.Is(err, kms.ErrKeyExists) {
		keyID, err = keyStore.KeyByIdentity(ctx, kms.KeyTypeEd25519, engineIdentity)
	}
	if err != nil {
		return kms.KeyID{}, nil, &KeyGenFailureError{Err: err}
	}
	pub, err := keyStore.PublicKey(keyID)
	if err != nil {
		return kms.KeyID{}, nil, &KeyGenFailureError{Err: err}
	}
	return keyID, pub, nil
}

// GenerateProofs derives one proof per disclosable fact. Statements come from a
// fixed vocabulary keyed on the facts alone, so no proof output can carry any
// substring of the source record text; the text enters only the one-way
// commitment.
func (s *proofService) GenerateProofs(ctx context.Context, subjectDID string, facts domain.Facts, secret string) ([]*domain.ProofRecord, error) {
	now := s.now().UTC()
	expires := now.Add(s.policy.ProofTTL)

	statements := []struct {
		proofType string
		statement string
	}{
		{domain.ProofTypeContagious, contagiousStatement(facts.Contagious)},
		{domain.ProofTypeCategory, fmt.Sprintf("Condition category is %s", facts.Category)},
		{domain.ProofTypeSeverity, fmt.Sprintf("Condition severity is %s", facts.Severity)},
	}

	records := make([]*domain.ProofRecord, 0, len(statements))
	for _, st := range statements {
		rec, err := s.buildProof(ctx, subjectDID, st.proofType, st.statement, facts, secret, now, expires)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	s.auditSink.Emit(ctx, audit.NewEvent(subjectDID, audit.ActionProofGenerated, subjectDID, audit.OutcomeSuccess,
		map[string]string{"count": fmt.Sprintf("%d", len(records)), "category": string(facts.Category)}))
	return records, nil
}

func contagiousStatement(contagious bool) string {
	if contagious {
		return "Subject carries a contagious condition"
	}
	return "Subject carries no contagious condition"
}

// buildProof persists one proof, redrawing the code if another active proof
// already holds it.
func (s *proofService) buildProof(ctx context.Context, subjectDID, proofType, statement string, facts domain.Facts, secret string, now, expires time.Time) (*domain.ProofRecord, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, &KeyGenFailureError{Err: err}
	}
	commitment := commit(salt, subjectDID, statement, secret)

	rec := &domain.ProofRecord{
		ID:               uuid.New(),
		SubjectDID:       subjectDID,
		ProofType:        proofType,
		PublicStatement:  statement,
		SecretCommitment: commitment,
		Category:         facts.Category,
		Contagious:       facts.Contagious,
		ExpiresAt:        expires,
		Active:           true,
		CreatedAt:        now,
	}
	if err := rec.SealProofData(hex.EncodeToString(salt), facts.Severity, facts.Codes); err != nil {
		return nil, storeErr(err)
	}

	for draw := 0; draw < maxCodeDraws; draw++ {
		code, err := drawCode()
		if err != nil {
			return nil, &KeyGenFailureError{Err: err}
		}
		rec.VerificationCode = code

		wctx, cancel := storeCtx(ctx, s.policy.StoreTimeout)
		err = s.proofs.Save(wctx, rec)
		cancel()
		if errors.Is(err, repositories.ErrCodeCollision) {
			log.Debug(ctx, "verification code collision, redrawing", "proof", rec.ID)
			continue
		}
		if err != nil {
			return nil, storeErr(err)
		}
		return rec, nil
	}
	return nil, storeErr(fmt.Errorf("exhausted verification code space after %d draws", maxCodeDraws))
}

// commit is the one-way binding of the statement to the source text. Without the
// salt and the full text no party can confirm a guessed preimage.
func commit(salt []byte, subjectDID, statement, secret string) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(subjectDID))
	h.Write([]byte(statement))
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

func drawCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// VerifyCode resolves a code against the store. An unknown code is an error; a
// known but expired or deactivated proof comes back Valid=false with the same
// reason the offline path would report.
func (s *proofService) VerifyCode(ctx context.Context, actor, code string) (domain.CodeVerification, error) {
	if !s.limiter.Allow(actor) {
		s.auditSink.Emit(ctx, audit.NewEvent(actor, audit.ActionRateLimited, code, audit.OutcomeFailure,
			map[string]string{"operation": "proof.verify"}))
		return domain.CodeVerification{}, ErrRateLimited
	}
	return s.verifyOne(ctx, actor, code)
}

func (s *proofService) verifyOne(ctx context.Context, actor, code string) (domain.CodeVerification, error) {
	rctx, cancel := storeCtx(ctx, s.policy.StoreTimeout)
	defer cancel()

	rec, err := s.proofs.GetByCode(rctx, code)
	if errors.Is(err, repositories.ErrProofNotFound) {
		s.mirrorVerify(ctx, actor, code, audit.OutcomeFailure, "CodeNotFound")
		return domain.CodeVerification{}, &ProofError{Kind: ProofCodeNotFound, Code: code}
	}
	if err != nil {
		return domain.CodeVerification{}, storeErr(err)
	}

	result := evaluate(code, rec.PublicStatement, rec.Category, rec.Contagious, rec.Active, rec.ExpiresAt, s.now())
	outcome := audit.OutcomeSuccess
	if !result.Valid {
		outcome = audit.OutcomeFailure
	}
	s.mirrorVerify(ctx, actor, code, outcome, result.Reason)
	return result, nil
}

// VerifyCodes checks a batch under one rate limit charge. Unknown codes become
// failed entries rather than aborting the batch.
func (s *proofService) VerifyCodes(ctx context.Context, actor string, codes []string) (domain.BatchVerification, error) {
	if !s.limiter.Allow(actor) {
		s.auditSink.Emit(ctx, audit.NewEvent(actor, audit.ActionRateLimited, "", audit.OutcomeFailure,
			map[string]string{"operation": "proof.verify_batch"}))
		return domain.BatchVerification{}, ErrRateLimited
	}

	batch := domain.BatchVerification{AllValid: len(codes) > 0}
	seenCategories := map[domain.Category]bool{}

	for _, code := range codes {
		result, err := s.verifyOne(ctx, actor, code)
		var pe *ProofError
		if errors.As(err, &pe) {
			result = domain.CodeVerification{Code: code, Reason: string(pe.Kind)}
		} else if err != nil {
			return domain.BatchVerification{}, err
		}
		batch.Results = append(batch.Results, result)
		if !result.Valid {
			batch.AllValid = false
			continue
		}
		if !seenCategories[result.Category] {
			batch.Categories = append(batch.Categories, result.Category)
			seenCategories[result.Category] = true
		}
	}
	return batch, nil
}

// OfflinePayload packages the proof for verification with no store round-trip.
// The envelope is signed by the engine key; tampering with any field invalidates
// the signature.
func (s *proofService) OfflinePayload(rec *domain.ProofRecord) (string, error) {
	env := offlineEnvelope{
		Code:       rec.VerificationCode,
		Statement:  rec.PublicStatement,
		Category:   rec.Category,
		Contagious: rec.Contagious,
		ExpiresAt:  rec.ExpiresAt.UTC(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", storeErr(err)
	}

	sig, err := s.keyStore.Sign(context.Background(), s.engineKey, body)
	if err != nil {
		return "", &KeyGenFailureError{Err: err}
	}
	return base64.RawURLEncoding.EncodeToString(body) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyOffline validates a self-contained payload. Signature first, then the
// same evaluation the online path runs, so both agree on every proof.
func (s *proofService) VerifyOffline(payload string) domain.CodeVerification {
	parts := strings.Split(payload, ".")
	if len(parts) != 2 {
		return domain.CodeVerification{Reason: "malformed payload"}
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return domain.CodeVerification{Reason: "malformed payload"}
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return domain.CodeVerification{Reason: "malformed payload"}
	}
	if !ed25519.Verify(s.enginePub, body, sig) {
		return domain.CodeVerification{Reason: "signature check failed"}
	}

	var env offlineEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.CodeVerification{Reason: "malformed payload"}
	}
	return evaluate(env.Code, env.Statement, env.Category, env.Contagious, true, env.ExpiresAt, s.now())
}

// evaluate is the single source of truth for proof liveness. Online and offline
// verification both end here, so the two paths cannot drift apart.
func evaluate(code, statement string, category domain.Category, contagious, active bool, expiresAt, now time.Time) domain.CodeVerification {
	if !active {
		return domain.CodeVerification{Code: code, Reason: "proof deactivated"}
	}
	if !now.Before(expiresAt) {
		return domain.CodeVerification{Code: code, Reason: "proof expired"}
	}
	return domain.CodeVerification{
		Valid:      true,
		Code:       code,
		Statement:  statement,
		Category:   category,
		Contagious: contagious,
	}
}

func (s *proofService) mirrorVerify(ctx context.Context, actor, code, outcome, reason string) {
	detail := map[string]string{}
	if reason != "" {
		detail["reason"] = reason
	}
	s.auditSink.Emit(ctx, audit.NewEvent(actor, audit.ActionProofVerify, code, outcome, detail))
}
