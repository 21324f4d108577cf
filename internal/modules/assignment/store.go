// README: Assignment store backed by PostgreSQL.
package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kwenda/internal/modules/dispatch"
	"kwenda/internal/types"
)

// Repository is the persistence the service needs. UpdateStatus reports
// false when the row is no longer at (from, version).
type Repository interface {
	Create(ctx context.Context, a *Assignment) error
	Get(ctx context.Context, id types.ID) (*Assignment, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error)
	ListStaleOffered(ctx context.Context, before time.Time, limit int) ([]*Assignment, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, order_id, driver_id, status, status_version, priority,
	pickup_lat, pickup_lng, distance_km, score, eta_minutes, route_eta_minutes,
	radius_km, created_at, responded_at`

func (s *Store) Create(ctx context.Context, a *Assignment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO assignments (
			id, order_id, driver_id, status, status_version, priority,
			pickup_lat, pickup_lng, distance_km, score, eta_minutes, route_eta_minutes,
			radius_km, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14
		)`,
		string(a.ID),
		string(a.OrderID),
		string(a.DriverID),
		string(a.Status),
		a.StatusVersion,
		string(a.Priority),
		a.Pickup.Lat, a.Pickup.Lng,
		a.DistanceKm,
		a.Score,
		a.ETAMinutes,
		a.RouteETAMinutes,
		a.RadiusKm,
		a.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Assignment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM assignments WHERE id = $1`, string(id))
	a, err := scanAssignment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE assignments
		SET status = $1,
			status_version = status_version + 1,
			responded_at = $2
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to),
		at,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListStaleOffered returns offers created before the cutoff that are still
// waiting for an answer, oldest first.
func (s *Store) ListStaleOffered(ctx context.Context, before time.Time, limit int) ([]*Assignment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM assignments
		WHERE status = 'offered' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, before, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	var id, orderID, driverID, status, priority string
	err := row.Scan(
		&id, &orderID, &driverID, &status, &a.StatusVersion, &priority,
		&a.Pickup.Lat, &a.Pickup.Lng, &a.DistanceKm, &a.Score, &a.ETAMinutes, &a.RouteETAMinutes,
		&a.RadiusKm, &a.CreatedAt, &a.RespondedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ID = types.ID(id)
	a.OrderID = types.ID(orderID)
	a.DriverID = types.ID(driverID)
	a.Status = Status(status)
	a.Priority = dispatch.Priority(priority)
	return &a, nil
}
