// README: Location snapshots persisted to Postgres.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_location_snapshots (driver_id, lat, lng, available, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(snap.DriverID),
		snap.Position.Lat,
		snap.Position.Lng,
		snap.Available,
		snap.RecordedAt,
	)
	return err
}
