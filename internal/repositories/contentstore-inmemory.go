package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
)

// ErrContentNotFound is returned when no content exists for the hash
var ErrContentNotFound = errors.New("content not found")

type contentStoreInMemory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewContentStoreInMemory returns a ContentStore implemented in memory. The real
// content store is an external collaborator; this stands in for it in tests and
// single-node deployments.
func NewContentStoreInMemory() *contentStoreInMemory {
	return &contentStoreInMemory{blobs: make(map[string][]byte)}
}

func (c *contentStoreInMemory) Put(_ context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[hash] = append([]byte(nil), data...)
	return hash, nil
}

func (c *contentStoreInMemory) Get(_ context.Context, hash string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if data, found := c.blobs[hash]; found {
		return append([]byte(nil), data...), nil
	}
	return nil, ErrContentNotFound
}
