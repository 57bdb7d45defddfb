package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/db"
)

const uniqueViolation = "23505"

type consent struct {
	conn db.Querier
}

// NewConsent returns the postgres consent ledger repository
func NewConsent(conn db.Querier) ports.ConsentRepository {
	return &consent{conn: conn}
}

const consentColumns = `id, subject_id, requester_id, status, reason, granted_by, created_at, expires_at, credential_id, superseded_by`

func (c *consent) GetCurrent(ctx context.Context, subjectID, requesterID string) (*domain.ConsentRecord, error) {
	row := c.conn.QueryRow(ctx,
		`SELECT `+consentColumns+` FROM consents
		  WHERE subject_id=$1 AND requester_id=$2 AND superseded_by IS NULL`, subjectID, requesterID)
	return scanConsent(row)
}

func (c *consent) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConsentRecord, error) {
	row := c.conn.QueryRow(ctx, `SELECT `+consentColumns+` FROM consents WHERE id=$1`, id)
	return scanConsent(row)
}

// GetByCredentialID returns the newest row carrying the credential. Both an
// approval and its superseding revocation reference the same credential id, so
// the lookup must not depend on row order.
func (c *consent) GetByCredentialID(ctx context.Context, credentialID uuid.UUID) (*domain.ConsentRecord, error) {
	row := c.conn.QueryRow(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE credential_id=$1
		  ORDER BY created_at DESC LIMIT 1`, credentialID)
	return scanConsent(row)
}

// Transition performs one optimistic ledger write: supersede prev, insert next,
// persist the credential alongside, all or nothing.
func (c *consent) Transition(ctx context.Context, prev, next *domain.ConsentRecord, cred *domain.Credential) error {
	err := c.conn.BeginFunc(ctx, func(tx pgx.Tx) error {
		if prev != nil {
			// expected prior status is part of the predicate, so a racing
			// transition on the same row forces a ConcurrentModification
			tag, err := tx.Exec(ctx,
				`UPDATE consents SET superseded_by=$1
				  WHERE id=$2 AND superseded_by IS NULL AND status=$3`,
				next.ID, prev.ID, prev.Status)
			if err != nil {
				return err
			}
			if tag.RowsAffected() != 1 {
				return ErrConcurrentModification
			}
		}
		if cred != nil {
			if err := saveCredential(ctx, tx, cred); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO consents (`+consentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			next.ID, next.SubjectID, next.RequesterID, next.Status, next.Reason, next.GrantedBy,
			next.CreatedAt, next.ExpiresAt, next.CredentialID, next.SupersededBy); err != nil {
			return err
		}
		if next.Status == domain.ConsentRevoked && prev != nil && prev.CredentialID != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE credentials SET revoked=true, revoked_at=$2 WHERE id=$1 AND NOT revoked`,
				*prev.CredentialID, time.Now().UTC()); err != nil {
				return err
			}
		}
		return nil
	})

	// two request(NONE) races surface as a unique violation on the partial
	// current-pair index rather than a lost update
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConcurrentModification
	}
	return err
}

func scanConsent(row pgx.Row) (*domain.ConsentRecord, error) {
	var res domain.ConsentRecord
	err := row.Scan(&res.ID, &res.SubjectID, &res.RequesterID, &res.Status, &res.Reason,
		&res.GrantedBy, &res.CreatedAt, &res.ExpiresAt, &res.CredentialID, &res.SupersededBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConsentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}
