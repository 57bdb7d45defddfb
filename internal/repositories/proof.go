package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/db"
)

type proof struct {
	conn db.Querier
}

// NewProof returns the postgres proof repository
func NewProof(conn db.Querier) ports.ProofRepository {
	return &proof{conn: conn}
}

func (p *proof) Save(ctx context.Context, rec *domain.ProofRecord) error {
	_, err := p.conn.Exec(ctx,
		`INSERT INTO proofs (id, subject_did, proof_type, public_statement, secret_commitment,
		                     proof_data, verification_code, expires_at, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.SubjectDID, rec.ProofType, rec.PublicStatement, rec.SecretCommitment,
		rec.ProofData, rec.VerificationCode, rec.ExpiresAt, rec.Active, rec.CreatedAt)

	// the partial unique index guards code uniqueness among active proofs
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrCodeCollision
	}
	return err
}

func (p *proof) GetByCode(ctx context.Context, code string) (*domain.ProofRecord, error) {
	row := p.conn.QueryRow(ctx,
		`SELECT id, subject_did, proof_type, public_statement, secret_commitment,
		        proof_data, verification_code, expires_at, active, created_at
		   FROM proofs WHERE verification_code=$1 AND active`, code)

	var res domain.ProofRecord
	err := row.Scan(&res.ID, &res.SubjectDID, &res.ProofType, &res.PublicStatement, &res.SecretCommitment,
		&res.ProofData, &res.VerificationCode, &res.ExpiresAt, &res.Active, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProofNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := res.UnsealProofData(); err != nil {
		return nil, err
	}
	return &res, nil
}

func (p *proof) CodeInUse(ctx context.Context, code string) (bool, error) {
	row := p.conn.QueryRow(ctx, `SELECT COUNT(1) FROM proofs WHERE verification_code=$1 AND active`, code)
	var n int64
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
