package kms

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// localEd25519KeyProvider keeps Ed25519 seeds in a directory of json files, one file
// per identity. Meant for development and tests; production deployments use the
// vault provider.
type localEd25519KeyProvider struct {
	path string
	mu   sync.Mutex
}

type localKeyFile struct {
	KeyID string `json:"key_id"`
	Seed  string `json:"seed"`
}

// NewLocalEd25519KeyProvider returns a file backed Ed25519 key provider rooted at path.
func NewLocalEd25519KeyProvider(path string) (KeyProvider, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create key store directory: %w", err)
	}
	return &localEd25519KeyProvider{path: path}, nil
}

func (p *localEd25519KeyProvider) New(identity string) (KeyID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	file := p.fileFor(identity)
	if _, err := os.Stat(file); err == nil {
		return KeyID{}, ErrKeyExists
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyID{}, fmt.Errorf("generating ed25519 key: %w", err)
	}

	keyID := KeyID{Type: KeyTypeEd25519, ID: hex.EncodeToString(pub)}
	content, err := json.Marshal(localKeyFile{
		KeyID: keyID.ID,
		Seed:  hex.EncodeToString(priv.Seed()),
	})
	if err != nil {
		return KeyID{}, err
	}
	if err := os.WriteFile(file, content, 0o600); err != nil {
		return KeyID{}, fmt.Errorf("writing key file: %w", err)
	}
	return keyID, nil
}

func (p *localEd25519KeyProvider) PublicKey(keyID KeyID) ([]byte, error) {
	return hex.DecodeString(keyID.ID)
}

func (p *localEd25519KeyProvider) Sign(_ context.Context, keyID KeyID, data []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	priv, err := p.privateKeyByID(keyID.ID)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, data), nil
}

func (p *localEd25519KeyProvider) KeyByIdentity(_ context.Context, identity string) (KeyID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kf, err := p.readKeyFile(p.fileFor(identity))
	if err != nil {
		return KeyID{}, err
	}
	return KeyID{Type: KeyTypeEd25519, ID: kf.KeyID}, nil
}

func (p *localEd25519KeyProvider) privateKeyByID(id string) (ed25519.PrivateKey, error) {
	entries, err := os.ReadDir(p.path)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		kf, err := p.readKeyFile(filepath.Join(p.path, e.Name()))
		if err != nil {
			continue
		}
		if kf.KeyID != id {
			continue
		}
		seed, err := hex.DecodeString(kf.Seed)
		if err != nil {
			return nil, fmt.Errorf("corrupt key file for %s: %w", id, err)
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}
	return nil, ErrKeyNotFound
}

func (p *localEd25519KeyProvider) readKeyFile(file string) (*localKeyFile, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	var kf localKeyFile
	if err := json.Unmarshal(content, &kf); err != nil {
		return nil, err
	}
	return &kf, nil
}

// identities are DIDs, not valid file names
func (p *localEd25519KeyProvider) fileFor(identity string) string {
	return filepath.Join(p.path, base64.RawURLEncoding.EncodeToString([]byte(identity))+".json")
}
