// README: Dispatch service sources online drivers, ranks them and records the winning offer.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kwenda/internal/config"
	"kwenda/internal/events"
	"kwenda/internal/types"
)

var (
	// ErrNoDriverAvailable means no eligible driver was found up to the widest radius.
	ErrNoDriverAvailable = errors.New("no driver available")
	ErrUnknownDriver     = errors.New("unknown driver")
)

// CandidateSource returns online, available drivers within radiusKm of pickup
// that can serve serviceType.
type CandidateSource interface {
	OnlineCandidates(ctx context.Context, pickup types.Point, radiusKm float64, serviceType string) ([]Candidate, error)
}

type OfferRecorder interface {
	Record(ctx context.Context, o Offer) error
}

type Notifier interface {
	NotifyDriver(ctx context.Context, o Offer) error
}

type ETAEstimator interface {
	DriveMinutes(ctx context.Context, from, to types.Point) (int, error)
}

type ServiceDeps struct {
	Source   CandidateSource
	Recorder OfferRecorder
	Bus      events.Publisher
	// Notifier and ETA are optional.
	Notifier Notifier
	ETA      ETAEstimator
}

type Service struct {
	source   CandidateSource
	recorder OfferRecorder
	bus      events.Publisher
	notifier Notifier
	eta      ETAEstimator
	cfg      config.DispatchConfig
	log      *zap.Logger
}

func NewService(deps ServiceDeps, cfg config.DispatchConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		source:   deps.Source,
		recorder: deps.Recorder,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		eta:      deps.ETA,
		cfg:      cfg,
		log:      log,
	}
}

type noDriverPayload struct {
	Pickup   types.Point `json:"pickup"`
	Priority Priority    `json:"priority"`
	RadiusKm float64     `json:"radius_km"`
}

// Preview ranks caller-supplied candidates without any side effects.
func (s *Service) Preview(req Request, candidates []Candidate) ([]ScoredCandidate, error) {
	return Score(req, candidates)
}

// Dispatch finds the best driver for an order, widening the search radius up
// to the configured cap when nobody is eligible, and records the offer.
func (s *Service) Dispatch(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrInvalidInput)
	}
	priority, err := ParsePriority(string(cmd.Priority))
	if err != nil {
		return nil, err
	}
	cmd.Priority = priority

	radius := cmd.MaxDistanceKm
	if radius == 0 {
		radius = s.cfg.MaxDistanceKm
	}
	maxRadius := math.Max(radius, s.cfg.MaxRadiusKm)

	for {
		req := Request{Pickup: cmd.Pickup, Priority: cmd.Priority, MaxDistanceKm: radius}
		// Validate before touching the source so bad input is not retried.
		if err := req.validate(); err != nil {
			return nil, err
		}

		candidates, err := s.fetchCandidates(ctx, cmd, radius)
		if err != nil {
			return nil, err
		}
		ranked, err := Score(req, candidates)
		if err != nil {
			return nil, err
		}
		if best, ok := PickBest(ranked); ok {
			return s.offer(ctx, cmd, best, ranked, radius)
		}

		if radius >= maxRadius || s.cfg.RadiusStepKm <= 0 {
			break
		}
		next := math.Min(radius+s.cfg.RadiusStepKm, maxRadius)
		s.log.Info("no eligible driver, widening search radius",
			zap.String("order_id", string(cmd.OrderID)),
			zap.Float64("from_km", radius),
			zap.Float64("to_km", next),
		)
		radius = next
	}

	s.log.Info("no driver available",
		zap.String("order_id", string(cmd.OrderID)),
		zap.Float64("radius_km", radius),
	)
	s.publish(ctx, events.TypeDispatchNoDriver, cmd.OrderID, noDriverPayload{
		Pickup:   cmd.Pickup,
		Priority: cmd.Priority,
		RadiusKm: radius,
	})
	return nil, ErrNoDriverAvailable
}

func (s *Service) fetchCandidates(ctx context.Context, cmd Command, radius float64) ([]Candidate, error) {
	serviceType := cmd.ServiceType
	if serviceType == "" {
		serviceType = ServiceAny
	}

	var candidates []Candidate
	err := s.retry(ctx, "fetch candidates", func() error {
		var err error
		candidates, err = s.source.OnlineCandidates(ctx, cmd.Pickup, radius, serviceType)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching candidates: %w", err)
	}

	if len(cmd.ExcludeDriverIDs) == 0 {
		return candidates, nil
	}
	return slices.DeleteFunc(candidates, func(c Candidate) bool {
		return slices.Contains(cmd.ExcludeDriverIDs, c.ID)
	}), nil
}

func (s *Service) offer(ctx context.Context, cmd Command, best ScoredCandidate, ranked []ScoredCandidate, radius float64) (*Result, error) {
	o := Offer{
		ID:         types.ID(uuid.NewString()),
		OrderID:    cmd.OrderID,
		DriverID:   best.Candidate.ID,
		Pickup:     cmd.Pickup,
		Priority:   cmd.Priority,
		DistanceKm: best.DistanceKm,
		Score:      best.Score,
		ETAMinutes: best.ETAMinutes,
		RadiusKm:   radius,
		OfferedAt:  time.Now().UTC(),
	}

	if s.eta != nil {
		minutes, err := s.eta.DriveMinutes(ctx, best.Candidate.Location, cmd.Pickup)
		if err != nil {
			s.log.Warn("route eta unavailable, keeping heuristic",
				zap.String("order_id", string(cmd.OrderID)),
				zap.Error(err),
			)
		} else {
			o.RouteETAMinutes = minutes
		}
	}

	if err := s.retry(ctx, "record offer", func() error { return s.recorder.Record(ctx, o) }); err != nil {
		return nil, fmt.Errorf("recording offer: %w", err)
	}

	s.log.Info("driver offered",
		zap.String("order_id", string(o.OrderID)),
		zap.String("driver_id", string(o.DriverID)),
		zap.Float64("distance_km", o.DistanceKm),
		zap.Float64("score", o.Score),
		zap.Int("candidates", len(ranked)),
	)
	s.publish(ctx, events.TypeDispatchAssigned, cmd.OrderID, o)

	if s.notifier != nil {
		if err := s.notifier.NotifyDriver(ctx, o); err != nil {
			s.log.Warn("driver notification failed",
				zap.String("driver_id", string(o.DriverID)),
				zap.Error(err),
			)
		}
	}
	return &Result{Offer: o, Ranked: ranked}, nil
}

// publish emits an outcome event. Failures are logged: the outcome itself is
// already decided and recorded.
func (s *Service) publish(ctx context.Context, eventType string, orderID types.ID, payload any) {
	if s.bus == nil {
		return
	}
	e, err := events.New(eventType, string(orderID), payload)
	if err == nil {
		err = s.retry(ctx, "publish "+eventType, func() error { return s.bus.Publish(ctx, e) })
	}
	if err != nil {
		s.log.Error("publishing dispatch event",
			zap.String("type", eventType),
			zap.String("order_id", string(orderID)),
			zap.Error(err),
		)
	}
}

// retry runs fn up to RetryAttempts times with exponential backoff.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	attempts := s.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if initial := s.cfg.RetryInitial(); initial > 0 {
		b.InitialInterval = initial
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	return backoff.RetryNotify(fn, policy, func(err error, wait time.Duration) {
		s.log.Warn("retrying "+op, zap.Duration("wait", wait), zap.Error(err))
	})
}
