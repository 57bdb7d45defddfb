package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/db"
)

type credential struct {
	conn db.Querier
}

// NewCredential returns the postgres credential repository
func NewCredential(conn db.Querier) ports.CredentialRepository {
	return &credential{conn: conn}
}

func (c *credential) Save(ctx context.Context, cred *domain.Credential) error {
	return saveCredential(ctx, c.conn, cred)
}

func (c *credential) GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	row := c.conn.QueryRow(ctx,
		`SELECT id, subject_did, issuer_did, audience_id, record_pointers, scope, limitations,
		        issued_at, expires_at, signed_token, revoked, revoked_at
		   FROM credentials WHERE id=$1`, id)

	var res domain.Credential
	var pointers, limitations []byte
	err := row.Scan(&res.ID, &res.SubjectDID, &res.IssuerDID, &res.AudienceID, &pointers, &res.Scope,
		&limitations, &res.IssuedAt, &res.ExpiresAt, &res.SignedToken, &res.Revoked, &res.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pointers, &res.RecordPointers); err != nil {
		return nil, err
	}
	if limitations != nil {
		if err := json.Unmarshal(limitations, &res.Limitations); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

// Revoke flips the monotonic revoked flag. The WHERE clause keeps it one way:
// a second revoke is a no-op.
func (c *credential) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := c.conn.Exec(ctx,
		`UPDATE credentials SET revoked=true, revoked_at=$2 WHERE id=$1 AND NOT revoked`, id, at)
	return err
}

// saveCredential inserts on any Querier so ledger repositories can persist a
// credential inside their own transaction.
func saveCredential(ctx context.Context, conn db.Querier, cred *domain.Credential) error {
	pointers, err := json.Marshal(cred.RecordPointers)
	if err != nil {
		return err
	}
	var limitations []byte
	if cred.Limitations != nil {
		if limitations, err = json.Marshal(cred.Limitations); err != nil {
			return err
		}
	}
	_, err = conn.Exec(ctx,
		`INSERT INTO credentials (id, subject_did, issuer_did, audience_id, record_pointers, scope,
		                          limitations, issued_at, expires_at, signed_token, revoked, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		cred.ID, cred.SubjectDID, cred.IssuerDID, cred.AudienceID, pointers, cred.Scope,
		limitations, cred.IssuedAt, cred.ExpiresAt, cred.SignedToken, cred.Revoked, cred.RevokedAt)
	return err
}
