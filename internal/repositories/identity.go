package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/db"
)

type identity struct {
	conn db.Querier
}

// NewIdentity returns the postgres identity repository
func NewIdentity(conn db.Querier) ports.IdentityRepository {
	return &identity{conn: conn}
}

// Save - Create new identity. The primary key on subject_key guarantees the
// keypair of an existing subject is never overwritten.
func (i *identity) Save(ctx context.Context, identity *domain.Identity) error {
	_, err := i.conn.Exec(ctx,
		`INSERT INTO identities (subject_key, did, public_key, key_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		identity.SubjectKey, identity.DID, identity.PublicKey, identity.KeyID, identity.CreatedAt)
	return err
}

func (i *identity) GetBySubjectKey(ctx context.Context, subjectKey string) (*domain.Identity, error) {
	return i.get(ctx, `SELECT subject_key, did, public_key, key_id, created_at FROM identities WHERE subject_key=$1`, subjectKey)
}

func (i *identity) GetByDID(ctx context.Context, did string) (*domain.Identity, error) {
	return i.get(ctx, `SELECT subject_key, did, public_key, key_id, created_at FROM identities WHERE did=$1`, did)
}

func (i *identity) get(ctx context.Context, sql, arg string) (*domain.Identity, error) {
	var res domain.Identity
	row := i.conn.QueryRow(ctx, sql, arg)
	err := row.Scan(&res.SubjectKey, &res.DID, &res.PublicKey, &res.KeyID, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}
