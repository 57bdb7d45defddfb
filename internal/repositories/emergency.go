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

type emergency struct {
	conn db.Querier
}

// NewEmergency returns the postgres emergency consent repository
func NewEmergency(conn db.Querier) ports.EmergencyRepository {
	return &emergency{conn: conn}
}

const emergencyColumns = `id, subject_id, requester_id, emergency_type, justification, primary_authorizer,
	secondary_authorizer, next_of_kin, granted_at, expires_at, credential_id, limitations, revoked_at`

// Save persists the record and its credential in one transaction: no grant row
// without its credential, no credential without its grant.
func (e *emergency) Save(ctx context.Context, rec *domain.EmergencyConsentRecord, cred *domain.Credential) error {
	primary, err := json.Marshal(rec.Primary)
	if err != nil {
		return err
	}
	secondary, err := json.Marshal(rec.Secondary)
	if err != nil {
		return err
	}
	var nextOfKin, limitations []byte
	if rec.NextOfKin != nil {
		if nextOfKin, err = json.Marshal(rec.NextOfKin); err != nil {
			return err
		}
	}
	if rec.Limitations != nil {
		if limitations, err = json.Marshal(rec.Limitations); err != nil {
			return err
		}
	}

	return e.conn.BeginFunc(ctx, func(tx pgx.Tx) error {
		if cred != nil {
			if err := saveCredential(ctx, tx, cred); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO emergency_consents (`+emergencyColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			rec.ID, rec.SubjectID, rec.RequesterID, rec.EmergencyType, rec.Justification, primary,
			secondary, nextOfKin, rec.GrantedAt, rec.ExpiresAt, rec.CredentialID, limitations, rec.RevokedAt)
		return err
	})
}

func (e *emergency) GetByID(ctx context.Context, id uuid.UUID) (*domain.EmergencyConsentRecord, error) {
	row := e.conn.QueryRow(ctx, `SELECT `+emergencyColumns+` FROM emergency_consents WHERE id=$1`, id)
	return scanEmergency(row)
}

func (e *emergency) GetByCredentialID(ctx context.Context, credentialID uuid.UUID) (*domain.EmergencyConsentRecord, error) {
	row := e.conn.QueryRow(ctx, `SELECT `+emergencyColumns+` FROM emergency_consents WHERE credential_id=$1`, credentialID)
	return scanEmergency(row)
}

// Revoke is terminal: the row keeps its revoked_at forever and the credential
// goes with it.
func (e *emergency) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	return e.conn.BeginFunc(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE emergency_consents SET revoked_at=$2 WHERE id=$1 AND revoked_at IS NULL
			 RETURNING credential_id`, id, at)
		var credentialID *uuid.UUID
		if err := row.Scan(&credentialID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEmergencyNotFound
			}
			return err
		}
		if credentialID == nil {
			return nil
		}
		_, err := tx.Exec(ctx,
			`UPDATE credentials SET revoked=true, revoked_at=$2 WHERE id=$1 AND NOT revoked`,
			*credentialID, at)
		return err
	})
}

func scanEmergency(row pgx.Row) (*domain.EmergencyConsentRecord, error) {
	var res domain.EmergencyConsentRecord
	var primary, secondary, nextOfKin, limitations []byte
	err := row.Scan(&res.ID, &res.SubjectID, &res.RequesterID, &res.EmergencyType, &res.Justification,
		&primary, &secondary, &nextOfKin, &res.GrantedAt, &res.ExpiresAt, &res.CredentialID,
		&limitations, &res.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmergencyNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(primary, &res.Primary); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(secondary, &res.Secondary); err != nil {
		return nil, err
	}
	if nextOfKin != nil {
		if err := json.Unmarshal(nextOfKin, &res.NextOfKin); err != nil {
			return nil, err
		}
	}
	if limitations != nil {
		if err := json.Unmarshal(limitations, &res.Limitations); err != nil {
			return nil, err
		}
	}
	return &res, nil
}
