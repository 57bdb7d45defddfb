package ports

import (
	"context"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// Analyzer maps free-form record text to categorical facts. It is deterministic
// and pure: the same input always yields the same output.
type Analyzer interface {
	Analyze(text string) domain.Facts
}

// ProofService derives disclosable proofs from facts and verifies their codes.
type ProofService interface {
	// GenerateProofs binds each disclosable fact to a one-way commitment over
	// secret (the source record text). Neither the statements nor the codes
	// ever contain any substring of secret.
	GenerateProofs(ctx context.Context, subjectDID string, facts domain.Facts, secret string) ([]*domain.ProofRecord, error)
	// VerifyCode resolves a single code against the authoritative store. actor
	// identifies the caller for rate limiting.
	VerifyCode(ctx context.Context, actor, code string) (domain.CodeVerification, error)
	VerifyCodes(ctx context.Context, actor string, codes []string) (domain.BatchVerification, error)
	// VerifyOffline validates a self-contained signed payload without touching
	// the store. It agrees bit for bit with VerifyCode on the same proof.
	VerifyOffline(payload string) domain.CodeVerification
	// OfflinePayload returns the signed transportable payload for a proof.
	OfflinePayload(rec *domain.ProofRecord) (string, error)
}
