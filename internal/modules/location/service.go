// README: Location service feeds driver reports into the dispatch pool.
package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"kwenda/internal/events"
	"kwenda/internal/modules/dispatch"
	"kwenda/internal/types"
)

var ErrBadRequest = errors.New("bad request")

// DriverPool is where dispatch looks for candidates: dispatch.Store or
// dispatch.MemoryPool.
type DriverPool interface {
	Upsert(ctx context.Context, d dispatch.DriverState) error
	SetAvailability(ctx context.Context, id types.ID, available bool) error
}

type SnapshotWriter interface {
	AppendSnapshot(ctx context.Context, snap Snapshot) error
}

type Service struct {
	pool      DriverPool
	snapshots SnapshotWriter
	bus       events.Publisher
	log       *zap.Logger

	mu      sync.Mutex
	lastSeq map[types.ID]int64
}

// NewService wires the service. snapshots and bus are optional.
func NewService(pool DriverPool, snapshots SnapshotWriter, bus events.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		pool:      pool,
		snapshots: snapshots,
		bus:       bus,
		log:       log,
		lastSeq:   make(map[types.ID]int64),
	}
}

func (s *Service) UpdateDriverLocation(ctx context.Context, u DriverUpdate) (UpdateResult, error) {
	if err := u.validate(); err != nil {
		return UpdateResult{}, err
	}
	prev, ok := s.advance(u.DriverID, u.Seq)
	if !ok {
		return UpdateResult{Accepted: false, Reason: "stale sequence"}, nil
	}

	err := s.pool.Upsert(ctx, dispatch.DriverState{
		ID:            u.DriverID,
		Location:      u.Position,
		Rating:        u.Rating,
		CompletedJobs: u.CompletedJobs,
		ServiceTypes:  u.ServiceTypes,
		Available:     u.Available,
	})
	if err != nil {
		// The position was not stored, so a retry of the same report must pass.
		s.rollback(u.DriverID, u.Seq, prev)
		return UpdateResult{}, fmt.Errorf("updating driver pool: %w", err)
	}

	if s.snapshots != nil {
		snap := Snapshot{
			DriverID:   u.DriverID,
			Position:   u.Position,
			Available:  u.Available,
			RecordedAt: time.Now().UTC(),
		}
		if err := s.snapshots.AppendSnapshot(ctx, snap); err != nil {
			s.log.Warn("appending location snapshot", zap.String("driver_id", string(u.DriverID)), zap.Error(err))
		}
	}

	s.publish(ctx, events.TypeDriverLocation, u.DriverID, u)
	return UpdateResult{Accepted: true}, nil
}

func (s *Service) SetAvailability(ctx context.Context, driverID types.ID, available bool) error {
	if driverID == "" {
		return ErrBadRequest
	}
	if err := s.pool.SetAvailability(ctx, driverID, available); err != nil {
		return err
	}
	s.publish(ctx, events.TypeDriverAvailability, driverID, map[string]any{
		"driver_id": driverID,
		"available": available,
	})
	return nil
}

// advance records seq for the driver and reports whether it is newer than
// anything seen before. prev is the sequence it replaced.
func (s *Service) advance(id types.ID, seq int64) (prev int64, ok bool) {
	if seq == 0 {
		return 0, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.lastSeq[id]
	if seq <= prev {
		return prev, false
	}
	s.lastSeq[id] = seq
	return prev, true
}

// rollback undoes advance unless a newer report has landed since.
func (s *Service) rollback(id types.ID, seq, prev int64) {
	if seq == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeq[id] != seq {
		return
	}
	if prev == 0 {
		delete(s.lastSeq, id)
		return
	}
	s.lastSeq[id] = prev
}

func (s *Service) publish(ctx context.Context, eventType string, driverID types.ID, payload any) {
	if s.bus == nil {
		return
	}
	e, err := events.New(eventType, string(driverID), payload)
	if err == nil {
		err = s.bus.Publish(ctx, e)
	}
	if err != nil {
		s.log.Warn("publishing driver event", zap.String("type", eventType), zap.Error(err))
	}
}

// validate applies the limits dispatch.Score enforces on candidates.
func (u DriverUpdate) validate() error {
	if u.DriverID == "" {
		return fmt.Errorf("%w: driver id is required", ErrBadRequest)
	}
	if err := u.Position.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if u.Rating != nil {
		r := *u.Rating
		if math.IsNaN(r) || r < 0 || r > dispatch.MaxRating {
			return fmt.Errorf("%w: rating %v outside [0,%v]", ErrBadRequest, r, dispatch.MaxRating)
		}
	}
	if u.CompletedJobs < 0 {
		return fmt.Errorf("%w: completed jobs %d is negative", ErrBadRequest, u.CompletedJobs)
	}
	if u.Seq < 0 {
		return fmt.Errorf("%w: seq %d is negative", ErrBadRequest, u.Seq)
	}
	return nil
}
