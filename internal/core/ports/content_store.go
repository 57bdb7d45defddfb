package ports

import "context"

// ContentStore is the external collaborator holding encrypted record bytes,
// addressed by content hash. Only put/get are in scope here.
type ContentStore interface {
	Put(ctx context.Context, data []byte) (hash string, err error)
	Get(ctx context.Context, hash string) ([]byte, error)
}
