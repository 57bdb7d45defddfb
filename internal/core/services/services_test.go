package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/healthlock/consent-node/internal/audit"
	"github.com/healthlock/consent-node/internal/config"
	"github.com/healthlock/consent-node/internal/kms"
)

func testKMS(t *testing.T) *kms.KMS {
	t.Helper()
	provider, err := kms.NewLocalEd25519KeyProvider(t.TempDir())
	require.NoError(t, err)
	k := kms.NewKMS()
	require.NoError(t, k.RegisterKeyProvider(kms.KeyTypeEd25519, provider))
	return k
}

func testPolicy() config.Policy {
	return config.Policy{
		MinCredentialTTL:  time.Minute,
		MaxCredentialTTL:  90 * 24 * time.Hour,
		DefaultConsentTTL: 24 * time.Hour,
		ProofTTL:          72 * time.Hour,
		RateLimit:         5,
		RateWindow:        time.Minute,
		StoreTimeout:      time.Second,
	}
}

// recordingSink captures emitted audit events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Emit(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

func (r *recordingSink) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return audit.Event{}
	}
	return r.events[len(r.events)-1]
}
