package domain

import (
	"time"
)

// DIDMethod is the method name of the DIDs minted by this engine. The method
// specific identifier is the base58 encoding of the subject's Ed25519 public key,
// so the DID itself certifies the key it was derived from.
const DIDMethod = "hlk"

// Identity represents a subject identity: the DID and the public half of the
// custodial keypair. Created once per subject, never deleted, the keypair is
// never overwritten.
type Identity struct {
	SubjectKey string    `json:"subjectKey"`
	DID        string    `json:"did"`
	PublicKey  []byte    `json:"publicKey"`
	KeyID      string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
