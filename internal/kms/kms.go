package kms

import (
	"context"
	"errors"
)

// KeyProvider describes the interface that key providers should match.
type KeyProvider interface {
	// New generates a random key bound to the given identity. It must refuse to
	// replace a key that already exists for that identity.
	New(identity string) (KeyID, error)
	// PublicKey returns byte representation of public key
	PublicKey(keyID KeyID) ([]byte, error)
	// Sign the data and return signature.
	Sign(ctx context.Context, keyID KeyID, data []byte) ([]byte, error)
	// KeyByIdentity returns the key associated with identity
	KeyByIdentity(ctx context.Context, identity string) (KeyID, error)
}

// KMS stores keys and secrets
type KMS struct {
	registry map[KeyType]KeyProvider
}

// KeyType describes the type of Key
type KeyType string

// List of supported key types
const (
	KeyTypeEd25519 KeyType = "ED25519"
)

// ErrUnknownKeyType returns when we do not support this type of keys
var ErrUnknownKeyType = errors.New("unknown key type")

// ErrKeyTypeConflict raises when we register new key provider with key type
// that already exists
var ErrKeyTypeConflict = errors.New("key type already registered")

// ErrKeyNotFound returns when no key exists for the requested identity
var ErrKeyNotFound = errors.New("key not found")

// ErrKeyExists returns when a provider is asked to create a key for an identity
// that already holds one
var ErrKeyExists = errors.New("key already exists for identity")

// KeyID is a key unique identifier
type KeyID struct {
	Type KeyType
	ID   string
}

// NewKMS create new KMS
func NewKMS() *KMS {
	return &KMS{registry: make(map[KeyType]KeyProvider)}
}

// RegisterKeyProvider register new key provider. It is thread unsafe,
// function should be called on app initialization or under external mutex.
func (k *KMS) RegisterKeyProvider(kt KeyType, kp KeyProvider) error {
	if _, ok := k.registry[kt]; ok {
		return ErrKeyTypeConflict
	}

	k.registry[kt] = kp
	return nil
}

// CreateKey creates a new random key of the specified type bound to identity.
func (k *KMS) CreateKey(kt KeyType, identity string) (KeyID, error) {
	var id KeyID
	kp, ok := k.registry[kt]
	if !ok {
		return id, ErrUnknownKeyType
	}
	return kp.New(identity)
}

// PublicKey returns bytes representation for public key for specified key ID
func (k *KMS) PublicKey(keyID KeyID) ([]byte, error) {
	kp, ok := k.registry[keyID.Type]
	if !ok {
		return nil, ErrUnknownKeyType
	}
	return kp.PublicKey(keyID)
}

// Sign signs data with the private key behind keyID
func (k *KMS) Sign(ctx context.Context, keyID KeyID, data []byte) ([]byte, error) {
	kp, ok := k.registry[keyID.Type]
	if !ok {
		return nil, ErrUnknownKeyType
	}

	return kp.Sign(ctx, keyID, data)
}

// KeyByIdentity returns the key of the given type held for identity
func (k *KMS) KeyByIdentity(ctx context.Context, kt KeyType, identity string) (KeyID, error) {
	kp, ok := k.registry[kt]
	if !ok {
		return KeyID{}, ErrUnknownKeyType
	}
	return kp.KeyByIdentity(ctx, identity)
}
