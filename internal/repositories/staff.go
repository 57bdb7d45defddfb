package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/healthlock/consent-node/internal/core/domain"
	"github.com/healthlock/consent-node/internal/core/ports"
	"github.com/healthlock/consent-node/internal/db"
)

type staff struct {
	conn db.Querier
}

// NewStaff returns the postgres staff repository. Staff CRUD itself is owned by
// the surrounding system; this engine only reads registration and duty status.
func NewStaff(conn db.Querier) ports.StaffRepository {
	return &staff{conn: conn}
}

func (s *staff) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT id, org_id, name, role, on_duty FROM staff WHERE id=$1`, id)

	var res domain.StaffMember
	err := row.Scan(&res.ID, &res.OrgID, &res.Name, &res.Role, &res.OnDuty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaffNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}
