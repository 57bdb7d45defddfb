package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/repositories"
)

type verifierFixture struct {
	consent  *consentFixture
	verifier *verifierService
}

func newVerifierFixture(t *testing.T) *verifierFixture {
	t.Helper()
	cf := newConsentFixture(t)
	creds := cf.creds
	emergencies := repositories.NewEmergencyInMemory(creds)
	verifier := NewVerifier(creds, cf.svc.consents, emergencies, cf.sink, time.Second).(*verifierService)
	return &verifierFixture{consent: cf, verifier: verifier}
}

func TestVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newVerifierFixture(t)
	_, cred := f.consent.approve(t, time.Hour)

	pointers, err := f.verifier.Verify(ctx, cred.SignedToken, f.consent.clinic)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1", "rec-2"}, pointers)
	assert.Contains(t, f.consent.sink.actions(), "credential.verify")
}

func TestVerifyRejections(t *testing.T) {
	ctx := context.Background()

	kind := func(t *testing.T, err error) CredentialErrorKind {
		t.Helper()
		var ce *CredentialError
		require.ErrorAs(t, err, &ce)
		return ce.Kind
	}

	t.Run("garbage token", func(t *testing.T) {
		f := newVerifierFixture(t)
		_, err := f.verifier.Verify(ctx, "not-a-token", f.consent.clinic)
		assert.Equal(t, CredentialMalformed, kind(t, err))
	})

	t.Run("tampered claims break the signature", func(t *testing.T) {
		f := newVerifierFixture(t)
		_, cred := f.consent.approve(t, time.Hour)

		parts := strings.Split(cred.SignedToken, ".")
		require.Len(t, parts, 3)
		// graft the body of one token onto the signature of another
		tampered := parts[0] + "." + parts[1] + "x." + parts[2]
		_, err := f.verifier.Verify(ctx, tampered, f.consent.clinic)
		kindGot := kind(t, err)
		assert.Contains(t, []CredentialErrorKind{CredentialBadSignature, CredentialMalformed}, kindGot)
	})

	t.Run("expired credential", func(t *testing.T) {
		f := newVerifierFixture(t)
		_, cred := f.consent.approve(t, time.Hour)

		f.verifier.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := f.verifier.Verify(ctx, cred.SignedToken, f.consent.clinic)
		assert.Equal(t, CredentialExpired, kind(t, err))
	})

	t.Run("audience mismatch", func(t *testing.T) {
		f := newVerifierFixture(t)
		_, cred := f.consent.approve(t, time.Hour)

		_, err := f.verifier.Verify(ctx, cred.SignedToken, "some-other-clinic")
		assert.Equal(t, CredentialAudienceMismatch, kind(t, err))
	})

	t.Run("revoked consent kills the credential", func(t *testing.T) {
		f := newVerifierFixture(t)
		_, cred := f.consent.approve(t, time.Hour)

		_, err := f.consent.svc.Revoke(ctx, f.consent.subject, f.consent.clinic)
		require.NoError(t, err)

		_, err = f.verifier.Verify(ctx, cred.SignedToken, f.consent.clinic)
		assert.Equal(t, CredentialRevoked, kind(t, err))
	})

	t.Run("revocation is never reversed by a second revoke", func(t *testing.T) {
		f := newVerifierFixture(t)
		_, cred := f.consent.approve(t, time.Hour)

		require.NoError(t, f.consent.creds.Revoke(ctx, cred.ID, time.Now()))
		require.NoError(t, f.consent.creds.Revoke(ctx, cred.ID, time.Now()))

		stored, err := f.consent.creds.GetByID(ctx, cred.ID)
		require.NoError(t, err)
		assert.True(t, stored.Revoked)

		_, err = f.verifier.Verify(ctx, cred.SignedToken, f.consent.clinic)
		assert.Equal(t, CredentialRevoked, kind(t, err))
	})

	t.Run("every failed attempt is mirrored", func(t *testing.T) {
		f := newVerifierFixture(t)
		_, err := f.verifier.Verify(ctx, "junk", f.consent.clinic)
		require.Error(t, err)
		last := f.consent.sink.last()
		assert.Equal(t, "credential.verify", last.Action)
		assert.Equal(t, "failure", last.Outcome)
	})
}

func TestIssuerPolicy(t *testing.T) {
	ctx := context.Background()
	f := newConsentFixture(t)

	identity, err := f.svc.identity.EnsureIdentity(ctx, f.subject)
	require.NoError(t, err)

	issue := func(ttl time.Duration) error {
		_, err := f.svc.issuer.Mint(ctx, ports.IssueRequest{
			SubjectDID:     identity.DID,
			AudienceID:     f.clinic,
			RecordPointers: []string{"rec-1"},
			TTL:            ttl,
			Authorization:  ports.Authorization{Kind: ports.AuthSubject, SubjectKey: f.subject},
		})
		return err
	}

	t.Run("ttl below policy floor", func(t *testing.T) {
		err := issue(time.Second)
		var ce *CredentialError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, CredentialPolicyViolation, ce.Kind)
	})

	t.Run("ttl above policy ceiling", func(t *testing.T) {
		err := issue(365 * 24 * time.Hour)
		var ce *CredentialError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, CredentialPolicyViolation, ce.Kind)
	})

	t.Run("subject authorization must match the DID", func(t *testing.T) {
		_, err := f.svc.issuer.Mint(ctx, ports.IssueRequest{
			SubjectDID:    identity.DID,
			AudienceID:    f.clinic,
			TTL:           time.Hour,
			Authorization: ports.Authorization{Kind: ports.AuthSubject, SubjectKey: "someone-else"},
		})
		var ce *CredentialError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, CredentialNotAuthorized, ce.Kind)
	})

	t.Run("issuer DID is the subject DID", func(t *testing.T) {
		cred, err := f.svc.issuer.Mint(ctx, ports.IssueRequest{
			SubjectDID:     identity.DID,
			AudienceID:     f.clinic,
			RecordPointers: []string{"rec-1"},
			TTL:            time.Hour,
			Authorization:  ports.Authorization{Kind: ports.AuthSubject, SubjectKey: f.subject},
		})
		require.NoError(t, err)
		assert.Equal(t, identity.DID, cred.IssuerDID)
		assert.True(t, strings.HasPrefix(cred.IssuerDID, "did:"+domain.DIDMethod+":"))
	})
}

func TestDIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newConsentFixture(t)

	identity, err := f.svc.identity.EnsureIdentity(ctx, f.subject)
	require.NoError(t, err)

	pub, err := PublicKeyFromDID(identity.DID)
	require.NoError(t, err)
	assert.Equal(t, []byte(identity.PublicKey), []byte(pub))

	_, err = PublicKeyFromDID("did:other:abc")
	require.Error(t, err)

	_, err = PublicKeyFromDID("did:hlk:!!!not-base58!!!")
	require.Error(t, err)
}
