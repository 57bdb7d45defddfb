package repositories

import "errors"

// Sentinel errors surfaced by the repositories
var (
	// ErrIdentityNotFound is returned when no identity exists for the lookup key
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrConsentNotFound is returned when a (subject, requester) pair has no
	// current ledger row, i.e. the implicit NONE state
	ErrConsentNotFound = errors.New("consent record not found")
	// ErrCredentialNotFound is returned when no credential exists for the id
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrEmergencyNotFound is returned when no emergency record exists for the id
	ErrEmergencyNotFound = errors.New("emergency consent record not found")
	// ErrStaffNotFound is returned when the staff member is not registered
	ErrStaffNotFound = errors.New("staff member not found")
	// ErrProofNotFound is returned when no proof holds the verification code
	ErrProofNotFound = errors.New("proof not found")
	// ErrConcurrentModification is returned when an optimistic ledger write lost
	// the race against another transition on the same pair
	ErrConcurrentModification = errors.New("concurrent consent modification")
	// ErrCodeCollision is returned when a verification code is already held by an
	// active proof; the caller redraws
	ErrCodeCollision = errors.New("verification code already in use")
)
