package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/repositories"
)

type consentFixture struct {
	svc     *consentService
	creds   *repositories.CredentialInMemory
	sink    *recordingSink
	subject string
	clinic  string
}

func newConsentFixture(t *testing.T) *consentFixture {
	t.Helper()
	keyStore := testKMS(t)
	policy := testPolicy()
	sink := &recordingSink{}

	creds := repositories.NewCredentialInMemory()
	consents := repositories.NewConsentInMemory(creds)
	identities := repositories.NewIdentityInMemory()

	identity := NewIdentity(identities, keyStore, policy.StoreTimeout)
	issuer := NewIssuer(identities, keyStore, policy)
	svc := NewConsent(consents, identity, issuer, sink, policy).(*consentService)

	return &consentFixture{
		svc:     svc,
		creds:   creds,
		sink:    sink,
		subject: "patient-001",
		clinic:  "clinic-a",
	}
}

func (f *consentFixture) approve(t *testing.T, ttl time.Duration) (*domain.ConsentRecord, *domain.Credential) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Request(ctx, f.subject, f.clinic, "annual checkup")
	require.NoError(t, err)
	rec, cred, err := f.svc.Approve(ctx, ports.ApproveRequest{
		SubjectID:      f.subject,
		RequesterID:    f.clinic,
		GrantedBy:      f.subject,
		TTL:            ttl,
		RecordPointers: []string{"rec-1", "rec-2"},
		Scope:          "read",
	})
	require.NoError(t, err)
	return rec, cred
}

func TestConsentLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("request then approve issues a credential", func(t *testing.T) {
		f := newConsentFixture(t)

		rec, err := f.svc.Request(ctx, f.subject, f.clinic, "annual checkup")
		require.NoError(t, err)
		assert.Equal(t, domain.ConsentRequested, rec.Status)

		approved, cred, err := f.svc.Approve(ctx, ports.ApproveRequest{
			SubjectID:      f.subject,
			RequesterID:    f.clinic,
			GrantedBy:      f.subject,
			TTL:            time.Hour,
			RecordPointers: []string{"rec-1"},
			Scope:          "read",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ConsentApproved, approved.Status)
		require.NotNil(t, approved.CredentialID)
		assert.Equal(t, cred.ID, *approved.CredentialID)
		assert.NotEmpty(t, cred.SignedToken)

		stored, err := f.creds.GetByID(ctx, cred.ID)
		require.NoError(t, err)
		assert.False(t, stored.Revoked)

		assert.Contains(t, f.sink.actions(), "consent.approved")
		assert.Contains(t, f.sink.actions(), "credential.issued")
	})

	t.Run("repeated request while pending is idempotent", func(t *testing.T) {
		f := newConsentFixture(t)

		first, err := f.svc.Request(ctx, f.subject, f.clinic, "checkup")
		require.NoError(t, err)
		second, err := f.svc.Request(ctx, f.subject, f.clinic, "checkup again")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "checkup", second.Reason)
	})

	t.Run("deny closes the request", func(t *testing.T) {
		f := newConsentFixture(t)

		_, err := f.svc.Request(ctx, f.subject, f.clinic, "marketing")
		require.NoError(t, err)
		rec, err := f.svc.Deny(ctx, f.subject, f.clinic, "not comfortable")
		require.NoError(t, err)
		assert.Equal(t, domain.ConsentDenied, rec.Status)

		// a denied requester may ask again
		again, err := f.svc.Request(ctx, f.subject, f.clinic, "second attempt")
		require.NoError(t, err)
		assert.Equal(t, domain.ConsentRequested, again.Status)
		assert.NotEqual(t, rec.ID, again.ID)
	})

	t.Run("revoke kills the credential", func(t *testing.T) {
		f := newConsentFixture(t)
		_, cred := f.approve(t, time.Hour)

		rec, err := f.svc.Revoke(ctx, f.subject, f.clinic)
		require.NoError(t, err)
		assert.Equal(t, domain.ConsentRevoked, rec.Status)

		stored, err := f.creds.GetByID(ctx, cred.ID)
		require.NoError(t, err)
		assert.True(t, stored.Revoked)
	})

	t.Run("approval expires at read time without a write", func(t *testing.T) {
		f := newConsentFixture(t)
		f.approve(t, time.Hour)

		f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		cur, err := f.svc.Current(ctx, f.subject, f.clinic)
		require.NoError(t, err)
		assert.Equal(t, domain.ConsentExpired, cur.Status)
	})
}

func TestConsentInvalidTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("approve without a pending request", func(t *testing.T) {
		f := newConsentFixture(t)
		_, _, err := f.svc.Approve(ctx, ports.ApproveRequest{SubjectID: f.subject, RequesterID: f.clinic, TTL: time.Hour})
		var ite *InvalidTransitionError
		require.ErrorAs(t, err, &ite)
		assert.Equal(t, domain.ConsentStatus("NONE"), ite.From)
		assert.Equal(t, domain.ConsentApproved, ite.Attempted)
	})

	t.Run("deny after approval", func(t *testing.T) {
		f := newConsentFixture(t)
		f.approve(t, time.Hour)
		_, err := f.svc.Deny(ctx, f.subject, f.clinic, "too late")
		var ite *InvalidTransitionError
		require.ErrorAs(t, err, &ite)
		assert.Equal(t, domain.ConsentApproved, ite.From)
	})

	t.Run("revoke without an approval", func(t *testing.T) {
		f := newConsentFixture(t)
		_, err := f.svc.Request(ctx, f.subject, f.clinic, "checkup")
		require.NoError(t, err)
		_, err = f.svc.Revoke(ctx, f.subject, f.clinic)
		var ite *InvalidTransitionError
		require.ErrorAs(t, err, &ite)
		assert.Equal(t, domain.ConsentRequested, ite.From)
	})

	t.Run("revoke an expired approval", func(t *testing.T) {
		f := newConsentFixture(t)
		f.approve(t, time.Hour)

		f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := f.svc.Revoke(ctx, f.subject, f.clinic)
		var ite *InvalidTransitionError
		require.ErrorAs(t, err, &ite)
		assert.Equal(t, domain.ConsentExpired, ite.From)
	})

	t.Run("request while an approval is live", func(t *testing.T) {
		f := newConsentFixture(t)
		f.approve(t, time.Hour)
		_, err := f.svc.Request(ctx, f.subject, f.clinic, "again")
		var ite *InvalidTransitionError
		require.ErrorAs(t, err, &ite)
		assert.Equal(t, domain.ConsentApproved, ite.From)
	})

	t.Run("unknown pair has no current consent", func(t *testing.T) {
		f := newConsentFixture(t)
		_, err := f.svc.Current(ctx, "nobody", "nowhere")
		require.ErrorIs(t, err, repositories.ErrConsentNotFound)
	})
}

func TestConsentRevokeAfterExpiryLeavesCredentialDead(t *testing.T) {
	ctx := context.Background()
	f := newConsentFixture(t)
	_, cred := f.approve(t, time.Hour)

	// expiry alone does not flip the stored flag; the credential dies through
	// its own expiresAt and the read-time consent status
	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	cur, err := f.svc.Current(ctx, f.subject, f.clinic)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentExpired, cur.Status)

	stored, err := f.creds.GetByID(ctx, cred.ID)
	require.NoError(t, err)
	assert.True(t, stored.Expired(f.svc.now()))
}
