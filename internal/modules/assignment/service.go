// README: Assignment service records dispatch offers and applies driver answers.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kwenda/internal/events"
	"kwenda/internal/modules/dispatch"
	"kwenda/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("assignment not found")
	ErrConflict     = errors.New("assignment state conflict")
	ErrForbidden    = errors.New("assignment belongs to another driver")
	ErrExpired      = errors.New("offer expired")
	ErrBadRequest   = errors.New("bad request")
)

const expiryBatch = 100

type Service struct {
	repo Repository
	bus  events.Publisher
	ttl  time.Duration
	log  *zap.Logger
	now  func() time.Time
}

// NewService wires the service. A zero ttl disables offer expiry; a nil bus
// disables event publishing.
func NewService(repo Repository, bus events.Publisher, ttl time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, bus: bus, ttl: ttl, log: log, now: time.Now}
}

type AnswerCommand struct {
	AssignmentID types.ID
	DriverID     types.ID
}

// Record persists a fresh offer. It satisfies dispatch.OfferRecorder.
func (s *Service) Record(ctx context.Context, o dispatch.Offer) error {
	if o.ID == "" || o.OrderID == "" || o.DriverID == "" {
		return ErrBadRequest
	}
	a := fromOffer(o)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return fmt.Errorf("creating assignment %s: %w", a.ID, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Assignment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Accept(ctx context.Context, cmd AnswerCommand) (*Assignment, error) {
	return s.answer(ctx, cmd, StatusAccepted)
}

func (s *Service) Decline(ctx context.Context, cmd AnswerCommand) (*Assignment, error) {
	return s.answer(ctx, cmd, StatusDeclined)
}

func (s *Service) answer(ctx context.Context, cmd AnswerCommand, to Status) (*Assignment, error) {
	if cmd.AssignmentID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	a, err := s.repo.Get(ctx, cmd.AssignmentID)
	if err != nil {
		return nil, err
	}
	if a.DriverID != cmd.DriverID {
		return nil, ErrForbidden
	}
	if !CanTransition(a.Status, to) {
		return nil, ErrInvalidState
	}
	now := s.now()
	if s.expired(a, now) {
		if _, err := s.transition(ctx, a, StatusExpired, now); err != nil && !errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, ErrExpired
	}
	return s.transition(ctx, a, to, now)
}

// ExpireStale moves every offer older than the TTL to expired and returns how
// many it moved. Offers answered in the meantime are skipped.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	now := s.now()
	stale, err := s.repo.ListStaleOffered(ctx, now.Add(-s.ttl), expiryBatch)
	if err != nil {
		return 0, fmt.Errorf("listing stale offers: %w", err)
	}
	expired := 0
	for _, a := range stale {
		if _, err := s.transition(ctx, a, StatusExpired, now); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// RunExpiryMonitor calls ExpireStale on every tick until ctx is done.
func (s *Service) RunExpiryMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireStale(ctx)
			if err != nil {
				s.log.Warn("expiring stale offers", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("expired stale offers", zap.Int("count", n))
			}
		}
	}
}

func (s *Service) expired(a *Assignment, now time.Time) bool {
	return s.ttl > 0 && now.Sub(a.CreatedAt) > s.ttl
}

func (s *Service) transition(ctx context.Context, a *Assignment, to Status, at time.Time) (*Assignment, error) {
	ok, err := s.repo.UpdateStatus(ctx, a.ID, a.Status, to, a.StatusVersion, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	next := *a
	next.Status = to
	next.StatusVersion++
	next.RespondedAt = &at
	s.publish(ctx, &next)
	return &next, nil
}

func (s *Service) publish(ctx context.Context, a *Assignment) {
	if s.bus == nil {
		return
	}
	e, err := events.New("assignment."+string(a.Status), string(a.OrderID), a)
	if err == nil {
		err = s.bus.Publish(ctx, e)
	}
	if err != nil {
		s.log.Warn("publishing assignment event",
			zap.String("assignment_id", string(a.ID)),
			zap.String("status", string(a.Status)),
			zap.Error(err))
	}
}
