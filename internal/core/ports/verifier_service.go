package ports

import (
	"context"
)

// VerifierService validates presented credentials and returns the authorized
// record pointers. Every attempt, success or failure, is mirrored to the audit
// trail; verification never fails silently.
type VerifierService interface {
	Verify(ctx context.Context, token, expectedAudience string) ([]string, error)
}
