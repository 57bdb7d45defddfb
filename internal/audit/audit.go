// Package audit mirrors every state transition and verification attempt to the
// external audit trail collaborator. Delivery failure is logged, never propagated:
// audit must not block the primary response.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consent-node/internal/log"
)

// Actions recorded on the trail
const (
	ActionConsentRequested  = "consent.requested"
	ActionConsentApproved   = "consent.approved"
	ActionConsentDenied     = "consent.denied"
	ActionConsentRevoked    = "consent.revoked"
	ActionCredentialIssued  = "credential.issued"
	ActionCredentialVerify  = "credential.verify"
	ActionEmergencyGranted  = "emergency.granted"
	ActionEmergencyRevoked  = "emergency.revoked"
	ActionEmergencyRejected = "emergency.rejected"
	ActionProofGenerated    = "proof.generated"
	ActionProofVerify       = "proof.verify"
	ActionRateLimited       = "security.rate_limited"
)

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one append-only audit trail entry.
type Event struct {
	ID       uuid.UUID         `json:"id"`
	At       time.Time         `json:"at"`
	Actor    string            `json:"actor"`
	Action   string            `json:"action"`
	Resource string            `json:"resource"`
	Outcome  string            `json:"outcome"`
	Detail   map[string]string `json:"detail,omitempty"`
}

// Sink is the append-only collaborator interface.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// NewEvent builds an event with id and timestamp filled in.
func NewEvent(actor, action, resource, outcome string, detail map[string]string) Event {
	return Event{
		ID:       uuid.New(),
		At:       time.Now().UTC(),
		Actor:    actor,
		Action:   action,
		Resource: resource,
		Outcome:  outcome,
		Detail:   detail,
	}
}

// LogSink writes events to the context logger only. Used when no external trail
// endpoint is configured, and as the fallback half of the HTTP sink.
type LogSink struct{}

// Emit logs the event
func (LogSink) Emit(ctx context.Context, ev Event) {
	log.Info(ctx, "audit",
		"action", ev.Action,
		"actor", ev.Actor,
		"resource", ev.Resource,
		"outcome", ev.Outcome,
		"detail", ev.Detail)
}
