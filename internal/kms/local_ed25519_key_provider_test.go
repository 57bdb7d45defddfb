package kms

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEd25519KeyProvider(t *testing.T) {
	ctx := context.Background()
	provider, err := NewLocalEd25519KeyProvider(t.TempDir())
	require.NoError(t, err)

	const identity = "did:hlk:test-subject"

	keyID, err := provider.New(identity)
	require.NoError(t, err)
	assert.Equal(t, KeyTypeEd25519, keyID.Type)
	assert.NotEmpty(t, keyID.ID)

	t.Run("never overwrites an existing key", func(t *testing.T) {
		_, err := provider.New(identity)
		require.ErrorIs(t, err, ErrKeyExists)
	})

	t.Run("key lookup by identity", func(t *testing.T) {
		got, err := provider.KeyByIdentity(ctx, identity)
		require.NoError(t, err)
		assert.Equal(t, keyID, got)
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := provider.KeyByIdentity(ctx, "did:hlk:nobody")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("signatures verify against the public key", func(t *testing.T) {
		msg := []byte("record access assertion")
		sig, err := provider.Sign(ctx, keyID, msg)
		require.NoError(t, err)

		pub, err := provider.PublicKey(keyID)
		require.NoError(t, err)
		assert.True(t, ed25519.Verify(pub, msg, sig))
	})
}

func TestKMSRegistry(t *testing.T) {
	provider, err := NewLocalEd25519KeyProvider(t.TempDir())
	require.NoError(t, err)

	k := NewKMS()
	require.NoError(t, k.RegisterKeyProvider(KeyTypeEd25519, provider))
	require.ErrorIs(t, k.RegisterKeyProvider(KeyTypeEd25519, provider), ErrKeyTypeConflict)

	_, err = k.CreateKey(KeyType("RSA"), "did:hlk:whoever")
	require.ErrorIs(t, err, ErrUnknownKeyType)

	keyID, err := k.CreateKey(KeyTypeEd25519, "did:hlk:whoever")
	require.NoError(t, err)

	pub, err := k.PublicKey(keyID)
	require.NoError(t, err)
	assert.Len(t, pub, ed25519.PublicKeySize)
}
