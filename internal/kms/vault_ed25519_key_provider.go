package kms

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"

	"github.com/hashicorp/vault/api"
)

// vaultEd25519KeyProvider keeps Ed25519 seeds in a vault KV v2 mount, one secret per
// identity. The private key never leaves this process boundary unencrypted.
type vaultEd25519KeyProvider struct {
	vault     *api.Client
	mountPath string
}

// NewVaultEd25519KeyProvider returns a vault backed Ed25519 key provider.
func NewVaultEd25519KeyProvider(vault *api.Client, mountPath string) KeyProvider {
	return &vaultEd25519KeyProvider{vault: vault, mountPath: mountPath}
}

func (p *vaultEd25519KeyProvider) New(identity string) (KeyID, error) {
	secretPath := p.secretPath(identity)

	existing, err := p.vault.Logical().Read(secretPath)
	if err != nil {
		return KeyID{}, fmt.Errorf("reading vault secret: %w", err)
	}
	if existing != nil && existing.Data != nil {
		return KeyID{}, ErrKeyExists
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyID{}, fmt.Errorf("generating ed25519 key: %w", err)
	}

	keyID := KeyID{Type: KeyTypeEd25519, ID: hex.EncodeToString(pub)}
	_, err = p.vault.Logical().Write(secretPath, map[string]interface{}{
		"data": map[string]interface{}{
			"key_id": keyID.ID,
			"seed":   hex.EncodeToString(priv.Seed()),
		},
	})
	if err != nil {
		return KeyID{}, fmt.Errorf("writing vault secret: %w", err)
	}
	return keyID, nil
}

func (p *vaultEd25519KeyProvider) PublicKey(keyID KeyID) ([]byte, error) {
	return hex.DecodeString(keyID.ID)
}

func (p *vaultEd25519KeyProvider) Sign(ctx context.Context, keyID KeyID, data []byte) ([]byte, error) {
	priv, err := p.privateKeyByID(ctx, keyID.ID)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, data), nil
}

func (p *vaultEd25519KeyProvider) KeyByIdentity(ctx context.Context, identity string) (KeyID, error) {
	data, err := p.readSecret(ctx, identity)
	if err != nil {
		return KeyID{}, err
	}
	id, ok := data["key_id"].(string)
	if !ok {
		return KeyID{}, fmt.Errorf("malformed vault secret for %s", identity)
	}
	return KeyID{Type: KeyTypeEd25519, ID: id}, nil
}

func (p *vaultEd25519KeyProvider) privateKeyByID(ctx context.Context, id string) (ed25519.PrivateKey, error) {
	list, err := p.vault.Logical().ListWithContext(ctx, path.Join(p.mountPath, "metadata", "keys"))
	if err != nil {
		return nil, fmt.Errorf("listing vault keys: %w", err)
	}
	if list == nil || list.Data == nil {
		return nil, ErrKeyNotFound
	}
	keys, ok := list.Data["keys"].([]interface{})
	if !ok {
		return nil, ErrKeyNotFound
	}
	for _, k := range keys {
		identity, ok := k.(string)
		if !ok {
			continue
		}
		data, err := p.readSecret(ctx, identity)
		if err != nil {
			continue
		}
		if keyID, _ := data["key_id"].(string); keyID != id {
			continue
		}
		seedHex, ok := data["seed"].(string)
		if !ok {
			return nil, fmt.Errorf("malformed vault secret for key %s", id)
		}
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("corrupt seed for key %s: %w", id, err)
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}
	return nil, ErrKeyNotFound
}

func (p *vaultEd25519KeyProvider) readSecret(ctx context.Context, identity string) (map[string]interface{}, error) {
	secret, err := p.vault.Logical().ReadWithContext(ctx, p.secretPath(identity))
	if err != nil {
		return nil, fmt.Errorf("reading vault secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrKeyNotFound
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, ErrKeyNotFound
	}
	return data, nil
}

func (p *vaultEd25519KeyProvider) secretPath(identity string) string {
	return path.Join(p.mountPath, "data", "keys", identity)
}
