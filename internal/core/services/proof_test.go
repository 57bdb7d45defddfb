package services

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/ratelimit"
	"github.com/healthlock/consent-node/internal/repositories"
)

type proofFixture struct {
	svc      *proofService
	analyzer ports.Analyzer
	sink     *recordingSink
}

func newProofFixture(t *testing.T) *proofFixture {
	t.Helper()
	keyStore := testKMS(t)
	policy := testPolicy()
	sink := &recordingSink{}
	limiter := ratelimit.New(policy.RateLimit, policy.RateWindow)

	svc, err := NewProof(context.Background(), repositories.NewProofInMemory(), keyStore, sink, limiter, policy)
	require.NoError(t, err)
	return &proofFixture{svc: svc.(*proofService), analyzer: NewAnalyzer(), sink: sink}
}

const recordText = "Patient diagnosed with active pulmonary Tuberculosis, started on RIPE therapy at Ward 3"

var codeShape = regexp.MustCompile(`^\d{6}$`)

func TestGenerateProofs(t *testing.T) {
	ctx := context.Background()
	f := newProofFixture(t)

	facts := f.analyzer.Analyze(recordText)
	require.True(t, facts.Contagious)

	records, err := f.svc.GenerateProofs(ctx, "did:hlk:subject1", facts, recordText)
	require.NoError(t, err)
	require.Len(t, records, 3)

	types := map[string]bool{}
	for _, rec := range records {
		types[rec.ProofType] = true
		assert.Regexp(t, codeShape, rec.VerificationCode)
		assert.True(t, rec.Active)
		assert.NotEmpty(t, rec.SecretCommitment)
	}
	assert.True(t, types[domain.ProofTypeContagious])
	assert.True(t, types[domain.ProofTypeCategory])
	assert.True(t, types[domain.ProofTypeSeverity])

	assert.Contains(t, f.sink.actions(), "proof.generated")
}

func TestProofsNeverLeakRecordText(t *testing.T) {
	ctx := context.Background()
	f := newProofFixture(t)

	facts := f.analyzer.Analyze(recordText)
	records, err := f.svc.GenerateProofs(ctx, "did:hlk:subject1", facts, recordText)
	require.NoError(t, err)

	// any word of the source text appearing in a proof output is a leak
	for _, word := range strings.Fields(strings.ToLower(recordText)) {
		if len(word) < 4 {
			continue
		}
		for _, rec := range records {
			assert.NotContains(t, strings.ToLower(rec.PublicStatement), word)
			assert.NotContains(t, rec.VerificationCode, word)
			payload, err := f.svc.OfflinePayload(rec)
			require.NoError(t, err)
			assert.NotContains(t, strings.ToLower(payload), word)
		}
	}
}

func TestVerifyCode(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		f := newProofFixture(t)
		facts := f.analyzer.Analyze(recordText)
		records, err := f.svc.GenerateProofs(ctx, "did:hlk:subject1", facts, recordText)
		require.NoError(t, err)

		for _, rec := range records {
			got, err := f.svc.VerifyCode(ctx, "border-control", rec.VerificationCode)
			require.NoError(t, err)
			assert.True(t, got.Valid)
			assert.Equal(t, rec.PublicStatement, got.Statement)
			assert.Equal(t, rec.Category, got.Category)
			assert.Equal(t, rec.Contagious, got.Contagious)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		f := newProofFixture(t)
		_, err := f.svc.VerifyCode(ctx, "border-control", "000000")
		var pe *ProofError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, ProofCodeNotFound, pe.Kind)
	})

	t.Run("expired proof reads invalid", func(t *testing.T) {
		f := newProofFixture(t)
		facts := f.analyzer.Analyze(recordText)
		records, err := f.svc.GenerateProofs(ctx, "did:hlk:subject1", facts, recordText)
		require.NoError(t, err)

		f.svc.now = func() time.Time { return time.Now().Add(testPolicy().ProofTTL + time.Hour) }
		got, err := f.svc.VerifyCode(ctx, "border-control", records[0].VerificationCode)
		require.NoError(t, err)
		assert.False(t, got.Valid)
		assert.Equal(t, "proof expired", got.Reason)
	})

	t.Run("rate limit trips and is mirrored", func(t *testing.T) {
		f := newProofFixture(t)
		for i := 0; i < testPolicy().RateLimit; i++ {
			_, _ = f.svc.VerifyCode(ctx, "scraper", "123456")
		}
		_, err := f.svc.VerifyCode(ctx, "scraper", "123456")
		require.ErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, "security.rate_limited", f.sink.last().Action)
	})
}

func TestVerifyCodesBatch(t *testing.T) {
	ctx := context.Background()
	f := newProofFixture(t)

	facts := f.analyzer.Analyze(recordText)
	records, err := f.svc.GenerateProofs(ctx, "did:hlk:subject1", facts, recordText)
	require.NoError(t, err)

	codes := []string{records[0].VerificationCode, records[1].VerificationCode}
	batch, err := f.svc.VerifyCodes(ctx, "border-control", codes)
	require.NoError(t, err)
	assert.True(t, batch.AllValid)
	assert.Len(t, batch.Results, 2)
	assert.Equal(t, []domain.Category{facts.Category}, batch.Categories)

	// one bad code fails the batch but not the good entries
	batch, err = f.svc.VerifyCodes(ctx, "border-control", append(codes, "999999"))
	require.NoError(t, err)
	assert.False(t, batch.AllValid)
	assert.Len(t, batch.Results, 3)
	assert.True(t, batch.Results[0].Valid)
	assert.False(t, batch.Results[2].Valid)
}

func TestOfflineVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("agrees with the online path", func(t *testing.T) {
		f := newProofFixture(t)
		facts := f.analyzer.Analyze(recordText)
		records, err := f.svc.GenerateProofs(ctx, "did:hlk:subject1", facts, recordText)
		require.NoError(t, err)

		for _, rec := range records {
			payload, err := f.svc.OfflinePayload(rec)
			require.NoError(t, err)

			online, err := f.svc.VerifyCode(ctx, "checkpoint", rec.VerificationCode)
			require.NoError(t, err)
			offline := f.svc.VerifyOffline(payload)
			assert.Equal(t, online, offline)
		}
	})

	t.Run("tampered envelope is rejected", func(t *testing.T) {
		f := newProofFixture(t)
		facts := f.analyzer.Analyze(recordText)
		records, err := f.svc.GenerateProofs(ctx, "did:hlk:subject1", facts, recordText)
		require.NoError(t, err)

		payload, err := f.svc.OfflinePayload(records[0])
		require.NoError(t, err)

		parts := strings.Split(payload, ".")
		body, err := base64.RawURLEncoding.DecodeString(parts[0])
		require.NoError(t, err)
		flipped := strings.Replace(string(body), "contagious", "harmless00", 1)
		tampered := base64.RawURLEncoding.EncodeToString([]byte(flipped)) + "." + parts[1]

		got := f.svc.VerifyOffline(tampered)
		assert.False(t, got.Valid)
		assert.Equal(t, "signature check failed", got.Reason)
	})

	t.Run("malformed payloads", func(t *testing.T) {
		f := newProofFixture(t)
		for _, payload := range []string{"", "onlyonepart", "a.b.c", "!!!.###"} {
			got := f.svc.VerifyOffline(payload)
			assert.False(t, got.Valid)
		}
	})

	t.Run("expired envelope reads invalid offline too", func(t *testing.T) {
		f := newProofFixture(t)
		facts := f.analyzer.Analyze(recordText)
		records, err := f.svc.GenerateProofs(ctx, "did:hlk:subject1", facts, recordText)
		require.NoError(t, err)

		payload, err := f.svc.OfflinePayload(records[0])
		require.NoError(t, err)

		f.svc.now = func() time.Time { return time.Now().Add(testPolicy().ProofTTL + time.Hour) }
		got := f.svc.VerifyOffline(payload)
		assert.False(t, got.Valid)
		assert.Equal(t, "proof expired", got.Reason)
	})
}
