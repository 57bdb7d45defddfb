package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// KeyGenFailureError signals a failure of the crypto backend while generating a
// subject keypair. The only failure mode of identity custody.
type KeyGenFailureError struct {
	Err error
}

// Error satisfies the error interface for KeyGenFailureError
func (e *KeyGenFailureError) Error() string {
	return fmt.Sprintf("identity key generation failure: %v", e.Err)
}

// Unwrap returns the underlying crypto backend error
func (e *KeyGenFailureError) Unwrap() error { return e.Err }

// CredentialErrorKind is the stable kind of a credential rejection
type CredentialErrorKind string

// Credential rejection kinds, in verification pipeline order
const (
	CredentialMalformed        CredentialErrorKind = "Malformed"
	CredentialBadSignature     CredentialErrorKind = "BadSignature"
	CredentialExpired          CredentialErrorKind = "Expired"
	CredentialAudienceMismatch CredentialErrorKind = "AudienceMismatch"
	CredentialRevoked          CredentialErrorKind = "Revoked"
	CredentialNotAuthorized    CredentialErrorKind = "NotAuthorized"
	CredentialPolicyViolation  CredentialErrorKind = "PolicyViolation"
)

// CredentialError is a domain rejection during issuance or verification
type CredentialError struct {
	Kind   CredentialErrorKind
	Reason string
}

// Error satisfies the error interface for CredentialError
func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s: %s", e.Kind, e.Reason)
}

func credErr(kind CredentialErrorKind, format string, args ...any) error {
	return &CredentialError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError names both the current and the attempted consent state
type InvalidTransitionError struct {
	From      domain.ConsentStatus
	Attempted domain.ConsentStatus
}

// Error satisfies the error interface for InvalidTransitionError
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid consent transition from %s to %s", e.From, e.Attempted)
}

// EmergencyErrorKind is the stable kind of an emergency grant rejection
type EmergencyErrorKind string

// Emergency rejection kinds, in validation order
const (
	EmergencyJustificationTooShort EmergencyErrorKind = "JustificationTooShort"
	EmergencyDuplicateAuthorizer   EmergencyErrorKind = "DuplicateAuthorizer"
	EmergencyStaffNotOnDuty        EmergencyErrorKind = "StaffNotOnDuty"
	EmergencyDurationNotAllowed    EmergencyErrorKind = "DurationNotAllowed"
	EmergencyGrantNotActive        EmergencyErrorKind = "GrantNotActive"
)

// EmergencyError is a domain rejection of an emergency grant request
type EmergencyError struct {
	Kind   EmergencyErrorKind
	Reason string
}

// Error satisfies the error interface for EmergencyError
func (e *EmergencyError) Error() string {
	return fmt.Sprintf("emergency grant rejected (%s): %s", e.Kind, e.Reason)
}

func emergencyErr(kind EmergencyErrorKind, format string, args ...any) error {
	return &EmergencyError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// ProofErrorKind is the stable kind of a proof verification rejection
type ProofErrorKind string

// ProofCodeNotFound rejects a code no active proof holds. Expiry and
// deactivation are not errors: they come back as an invalid verification result
// so the online and offline paths report them identically.
const ProofCodeNotFound ProofErrorKind = "CodeNotFound"

// ProofError is a domain rejection of a verification code
type ProofError struct {
	Kind ProofErrorKind
	Code string
}

// Error satisfies the error interface for ProofError
func (e *ProofError) Error() string {
	return fmt.Sprintf("proof code %s: %s", e.Code, e.Kind)
}

// InfraErrorKind distinguishes "try again later" failures from domain rejections
type InfraErrorKind string

// Infrastructure failure kinds
const (
	InfraTimeout     InfraErrorKind = "Timeout"
	InfraUnavailable InfraErrorKind = "Unavailable"
)

// InfraError wraps a persistent store or collaborator failure. Kept distinct from
// domain rejections so callers can tell "you are not allowed" from "try again".
type InfraError struct {
	Kind InfraErrorKind
	Err  error
}

// Error satisfies the error interface for InfraError
func (e *InfraError) Error() string {
	return fmt.Sprintf("infrastructure %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying failure
func (e *InfraError) Unwrap() error { return e.Err }

// ErrRateLimited is returned when a throttled operation exceeds its per-actor
// window. Reported, never silently dropped.
var ErrRateLimited = errors.New("rate limit exceeded")

// storeCtx bounds a persistent store call
func storeCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// storeErr classifies a persistent store failure as infrastructure
func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &InfraError{Kind: InfraTimeout, Err: err}
	}
	return &InfraError{Kind: InfraUnavailable, Err: err}
}
