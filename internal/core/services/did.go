package services

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/healthlock/consent-node/internal/core/domain"
)

// DIDFromPublicKey derives the subject DID from its Ed25519 public key. The
// method specific identifier is the base58 encoding of the key, so any holder of
// the DID can check signatures without a resolution round-trip.
func DIDFromPublicKey(pub ed25519.PublicKey) string {
	return fmt.Sprintf("did:%s:%s", domain.DIDMethod, base58.Encode(pub))
}

// PublicKeyFromDID recovers the Ed25519 public key certified by the DID.
func PublicKeyFromDID(did string) (ed25519.PublicKey, error) {
	prefix := fmt.Sprintf("did:%s:", domain.DIDMethod)
	if !strings.HasPrefix(did, prefix) {
		return nil, fmt.Errorf("unsupported DID method in %q", did)
	}
	raw, err := base58.Decode(strings.TrimPrefix(did, prefix))
	if err != nil {
		return nil, fmt.Errorf("decoding DID key material: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("DID key material has wrong size %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
