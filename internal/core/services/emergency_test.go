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
	"github.com/healthlock/consent-node/internal/ratelimit"
	"github.com/healthlock/consent-node/internal/repositories"
)

type emergencyFixture struct {
	svc   *emergencyService
	creds *repositories.CredentialInMemory
	sink  *recordingSink
}

func newEmergencyFixture(t *testing.T) *emergencyFixture {
	t.Helper()
	keyStore := testKMS(t)
	policy := testPolicy()
	sink := &recordingSink{}

	creds := repositories.NewCredentialInMemory()
	emergencies := repositories.NewEmergencyInMemory(creds)
	identities := repositories.NewIdentityInMemory()
	staff := repositories.NewStaffInMemory()
	staff.Register(domain.StaffMember{ID: "dr-primary", OrgID: "hospital-x", Name: "Dr. Primary", Role: "physician", OnDuty: true})
	staff.Register(domain.StaffMember{ID: "dr-secondary", OrgID: "hospital-x", Name: "Dr. Secondary", Role: "physician", OnDuty: true})
	staff.Register(domain.StaffMember{ID: "dr-offduty", OrgID: "hospital-x", Name: "Dr. Offduty", Role: "physician", OnDuty: false})
	staff.Register(domain.StaffMember{ID: "admin-1", OrgID: "hospital-x", Name: "Org Admin", Role: "admin", OnDuty: false})
	staff.Register(domain.StaffMember{ID: "dr-elsewhere", OrgID: "hospital-y", Name: "Dr. Elsewhere", Role: "physician", OnDuty: true})

	identity := NewIdentity(identities, keyStore, policy.StoreTimeout)
	issuer := NewIssuer(identities, keyStore, policy)
	limiter := ratelimit.New(policy.RateLimit, policy.RateWindow)
	svc := NewEmergency(emergencies, staff, identity, issuer, sink, limiter, policy).(*emergencyService)

	return &emergencyFixture{svc: svc, creds: creds, sink: sink}
}

func validEmergencyRequest() ports.EmergencyRequest {
	return ports.EmergencyRequest{
		SubjectID:     "patient-001",
		RequesterID:   "hospital-x",
		EmergencyType: "cardiac-arrest",
		Justification: strings.Repeat("patient unresponsive, immediate record access needed ", 2),
		Primary:       domain.Authorizer{ID: "dr-primary", Name: "Dr. Primary", Role: "physician"},
		Secondary:     domain.Authorizer{ID: "dr-secondary", Name: "Dr. Secondary", Role: "physician"},
		Duration:      time.Hour,
	}
}

func TestEmergencyGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("dual authorized grant issues a time-boxed credential", func(t *testing.T) {
		f := newEmergencyFixture(t)
		req := validEmergencyRequest()
		req.NextOfKin = &domain.NextOfKin{Name: "Jamie Doe", Relation: "spouse", Phone: "+15550100"}

		rec, cred, err := f.svc.Grant(ctx, req)
		require.NoError(t, err)
		assert.True(t, rec.Active(time.Now()))
		assert.Equal(t, rec.ExpiresAt, rec.GrantedAt.Add(time.Hour))
		assert.Contains(t, rec.Limitations, "emergency-access-only")
		require.NotNil(t, rec.CredentialID)
		assert.Equal(t, cred.ID, *rec.CredentialID)
		assert.Equal(t, "hospital-x", cred.AudienceID)

		assert.Contains(t, f.sink.actions(), "emergency.granted")
	})

	t.Run("expires exactly at the grant boundary", func(t *testing.T) {
		f := newEmergencyFixture(t)
		rec, _, err := f.svc.Grant(ctx, validEmergencyRequest())
		require.NoError(t, err)

		assert.True(t, rec.Active(rec.ExpiresAt.Add(-time.Second)))
		assert.False(t, rec.Active(rec.ExpiresAt))
	})

	t.Run("admin fallback covers an off-duty primary only", func(t *testing.T) {
		f := newEmergencyFixture(t)
		req := validEmergencyRequest()
		req.Primary = domain.Authorizer{ID: "admin-1", Name: "Org Admin", Role: "admin"}
		_, _, err := f.svc.Grant(ctx, req)
		require.NoError(t, err)

		req = validEmergencyRequest()
		req.Secondary = domain.Authorizer{ID: "admin-1", Name: "Org Admin", Role: "admin"}
		_, _, err = f.svc.Grant(ctx, req)
		var ee *EmergencyError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, EmergencyStaffNotOnDuty, ee.Kind)
	})

	t.Run("revoke is terminal", func(t *testing.T) {
		f := newEmergencyFixture(t)
		rec, cred, err := f.svc.Grant(ctx, validEmergencyRequest())
		require.NoError(t, err)

		require.NoError(t, f.svc.Revoke(ctx, rec.ID))

		stored, err := f.creds.GetByID(ctx, cred.ID)
		require.NoError(t, err)
		assert.True(t, stored.Revoked)

		err = f.svc.Revoke(ctx, rec.ID)
		var ee *EmergencyError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, EmergencyGrantNotActive, ee.Kind)
	})
}

func TestEmergencyValidation(t *testing.T) {
	ctx := context.Background()

	expectKind := func(t *testing.T, err error, kind EmergencyErrorKind) {
		t.Helper()
		var ee *EmergencyError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, kind, ee.Kind)
	}

	t.Run("short justification persists nothing", func(t *testing.T) {
		f := newEmergencyFixture(t)
		req := validEmergencyRequest()
		req.Justification = "need access now"

		rec, cred, err := f.svc.Grant(ctx, req)
		expectKind(t, err, EmergencyJustificationTooShort)
		assert.Nil(t, rec)
		assert.Nil(t, cred)

		last := f.sink.last()
		assert.Equal(t, "emergency.rejected", last.Action)
		assert.Equal(t, "JustificationTooShort", last.Detail["rejection"])
	})

	t.Run("same authorizer twice is always rejected", func(t *testing.T) {
		f := newEmergencyFixture(t)
		for i := 0; i < 5; i++ {
			req := validEmergencyRequest()
			req.Secondary = req.Primary
			_, _, err := f.svc.Grant(ctx, req)
			expectKind(t, err, EmergencyDuplicateAuthorizer)
		}
	})

	t.Run("missing second authorizer", func(t *testing.T) {
		f := newEmergencyFixture(t)
		req := validEmergencyRequest()
		req.Secondary = domain.Authorizer{}
		_, _, err := f.svc.Grant(ctx, req)
		expectKind(t, err, EmergencyDuplicateAuthorizer)
	})

	t.Run("off duty authorizer", func(t *testing.T) {
		f := newEmergencyFixture(t)
		req := validEmergencyRequest()
		req.Secondary = domain.Authorizer{ID: "dr-offduty", Name: "Dr. Offduty", Role: "physician"}
		_, _, err := f.svc.Grant(ctx, req)
		expectKind(t, err, EmergencyStaffNotOnDuty)
	})

	t.Run("unregistered authorizer", func(t *testing.T) {
		f := newEmergencyFixture(t)
		req := validEmergencyRequest()
		req.Primary = domain.Authorizer{ID: "impostor", Name: "Nobody", Role: "physician"}
		_, _, err := f.svc.Grant(ctx, req)
		expectKind(t, err, EmergencyStaffNotOnDuty)
	})

	t.Run("authorizer from another organization", func(t *testing.T) {
		f := newEmergencyFixture(t)
		req := validEmergencyRequest()
		req.Primary = domain.Authorizer{ID: "dr-elsewhere", Name: "Dr. Elsewhere", Role: "physician"}
		_, _, err := f.svc.Grant(ctx, req)
		expectKind(t, err, EmergencyStaffNotOnDuty)
	})

	t.Run("duration off the whitelist", func(t *testing.T) {
		f := newEmergencyFixture(t)
		for _, d := range []time.Duration{30 * time.Minute, 2 * time.Hour, 48 * time.Hour, 0} {
			req := validEmergencyRequest()
			req.Duration = d
			_, _, err := f.svc.Grant(ctx, req)
			expectKind(t, err, EmergencyDurationNotAllowed)
		}
	})
}

func TestEmergencyRateLimit(t *testing.T) {
	ctx := context.Background()
	f := newEmergencyFixture(t)

	// exhaust the window with rejected attempts, then confirm the limiter trips
	req := validEmergencyRequest()
	req.Justification = "too short"
	for i := 0; i < testPolicy().RateLimit; i++ {
		_, _, err := f.svc.Grant(ctx, req)
		var ee *EmergencyError
		require.ErrorAs(t, err, &ee)
	}

	_, _, err := f.svc.Grant(ctx, validEmergencyRequest())
	require.ErrorIs(t, err, ErrRateLimited)
	last := f.sink.last()
	assert.Equal(t, "security.rate_limited", last.Action)
}
