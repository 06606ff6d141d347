// README: Rider store backed by PostgreSQL; cell-indexed proximity query and penalty updates.
package rider

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lastmile/internal/types"
)

var ErrNotFound = errors.New("rider not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const riderColumns = `
	id, name, phone, email, lat, lng, cell,
	is_active, reliability_score, penalty_count, suspended_until, updated_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Rider, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+riderColumns+`
		FROM riders
		WHERE id = $1`, string(id),
	)
	return scanRider(row)
}

// UpdateLocation overwrites the rider's last known position and grid cell.
// Location updates are unordered relative to dispatch state; last write wins.
func (s *Store) UpdateLocation(ctx context.Context, id types.ID, p types.Point, cell string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE riders
		SET lat = $1, lng = $2, cell = $3, updated_at = NOW()
		WHERE id = $4`,
		p.Lat, p.Lng, cell, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByCells returns active, non-suspended riders located in any of the
// given cells.
func (s *Store) FindByCells(ctx context.Context, cells []string) ([]Rider, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+riderColumns+`
		FROM riders
		WHERE cell = ANY($1)
		  AND is_active = TRUE
		  AND (suspended_until IS NULL OR suspended_until <= NOW())`,
		cells,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rider
	for rows.Next() {
		r, err := scanRider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ApplyPenalty decrements the reliability score (floor 0), bumps the penalty
// count, and escalates to a suspension window once the count crosses a
// threshold. The whole policy runs in one statement so concurrent sweeps
// cannot interleave partial updates.
func (s *Store) ApplyPenalty(ctx context.Context, id types.ID) (*Rider, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE riders
		SET reliability_score = GREATEST(reliability_score - $1, 0),
		    penalty_count = penalty_count + 1,
		    suspended_until = CASE
		        WHEN penalty_count + 1 >= $2 THEN NOW() + make_interval(hours => $4)
		        WHEN penalty_count + 1 >= $3 THEN NOW() + make_interval(hours => $5)
		        ELSE suspended_until
		    END,
		    updated_at = NOW()
		WHERE id = $6
		RETURNING `+riderColumns,
		PenaltyStep,
		longSuspensionThreshold, shortSuspensionThreshold,
		int(longSuspension.Hours()), int(shortSuspension.Hours()),
		string(id),
	)
	return scanRider(row)
}

func scanRider(row pgx.Row) (*Rider, error) {
	var r Rider
	var suspendedUntil *time.Time
	err := row.Scan(
		&r.ID, &r.Name, &r.Phone, &r.Email, &r.Position.Lat, &r.Position.Lng, &r.Cell,
		&r.IsActive, &r.ReliabilityScore, &r.PenaltyCount, &suspendedUntil, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.SuspendedUntil = suspendedUntil
	return &r, nil
}
