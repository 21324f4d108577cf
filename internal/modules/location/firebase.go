// README: Firebase Realtime Database candidate source and FCM driver notifier.
package location

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"kwenda/internal/geo"
	"kwenda/internal/modules/dispatch"
	"kwenda/internal/types"
)

const (
	driverLocationsRef = "driver_locations"
	driverDevicesRef   = "driver_devices"
	statusOnline       = "online"
)

// FirebaseService reads online drivers written by the driver app to RTDB and
// pushes offers to their devices over FCM.
type FirebaseService struct {
	dbClient  *db.Client
	msgClient *messaging.Client
	log       *zap.Logger
}

func NewFirebaseService(ctx context.Context, app *firebase.App, log *zap.Logger) (*FirebaseService, error) {
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase RTDB client: %w", err)
	}
	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return &FirebaseService{dbClient: dbClient, msgClient: msgClient, log: log}, nil
}

// rtdbDriverEntry mirrors a single driver entry under /driver_locations.
type rtdbDriverEntry struct {
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Status        string   `json:"status"`
	Timestamp     int64    `json:"timestamp"`
	Rating        *float64 `json:"rating,omitempty"`
	CompletedJobs int      `json:"completed_jobs"`
	ServiceTypes  []string `json:"service_types,omitempty"`
}

// OnlineCandidates implements dispatch.CandidateSource.
func (s *FirebaseService) OnlineCandidates(ctx context.Context, pickup types.Point, radiusKm float64, serviceType string) ([]dispatch.Candidate, error) {
	var data map[string]rtdbDriverEntry
	ref := s.dbClient.NewRef(driverLocationsRef)
	if err := ref.OrderByChild("status").EqualTo(statusOnline).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("querying online drivers: %w", err)
	}
	return s.nearby(pickup, radiusKm, serviceType, data), nil
}

// nearby keeps entries within radius that offer serviceType. Entries the
// scorer would reject are logged and skipped so one bad record cannot fail
// the whole dispatch.
func (s *FirebaseService) nearby(pickup types.Point, radiusKm float64, serviceType string, data map[string]rtdbDriverEntry) []dispatch.Candidate {
	type hit struct {
		c    dispatch.Candidate
		dist float64
	}
	var hits []hit
	for id, entry := range data {
		if entry.Status != statusOnline || !offers(entry.ServiceTypes, serviceType) {
			continue
		}
		c := dispatch.Candidate{
			ID:            types.ID(id),
			Location:      types.Point{Lat: entry.Lat, Lng: entry.Lng},
			Rating:        entry.Rating,
			CompletedJobs: entry.CompletedJobs,
		}
		if !usable(c) {
			s.log.Warn("skipping malformed driver entry", zap.String("driver_id", id))
			continue
		}
		d := geo.HaversineKm(pickup, c.Location)
		if d <= radiusKm {
			hits = append(hits, hit{c: c, dist: d})
		}
	}

	// Map order is random; sort by id first so equal distances are stable.
	slices.SortFunc(hits, func(a, b hit) int { return cmp.Compare(a.c.ID, b.c.ID) })
	geo.SortByDistance(hits, func(h hit) float64 { return h.dist })

	out := make([]dispatch.Candidate, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out
}

// NotifyDriver implements dispatch.Notifier. The device token is read from
// /driver_devices/{driverID}/token.
func (s *FirebaseService) NotifyDriver(ctx context.Context, o dispatch.Offer) error {
	var token string
	if err := s.dbClient.NewRef(driverDevicesRef).Child(string(o.DriverID)).Child("token").Get(ctx, &token); err != nil {
		return fmt.Errorf("reading device token for %s: %w", o.DriverID, err)
	}
	if token == "" {
		return fmt.Errorf("empty device token for driver %s", o.DriverID)
	}

	messageID, err := s.msgClient.Send(ctx, offerMessage(token, o))
	if err != nil {
		return fmt.Errorf("sending FCM to driver %s: %w", o.DriverID, err)
	}
	s.log.Info("FCM sent",
		zap.String("order_id", string(o.OrderID)),
		zap.String("driver_id", string(o.DriverID)),
		zap.String("message_id", messageID))
	return nil
}

func offerMessage(token string, o dispatch.Offer) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type":          "new_offer",
			"assignment_id": string(o.ID),
			"order_id":      string(o.OrderID),
			"priority":      string(o.Priority),
			"pickup_lat":    strconv.FormatFloat(o.Pickup.Lat, 'f', 6, 64),
			"pickup_lng":    strconv.FormatFloat(o.Pickup.Lng, 'f', 6, 64),
			"distance_km":   strconv.FormatFloat(o.DistanceKm, 'f', 2, 64),
			"eta_minutes":   strconv.Itoa(o.ETAMinutes),
		},
		Notification: &messaging.Notification{
			Title: "New ride request",
			Body:  fmt.Sprintf("Pickup %.1f km away, about %d min", o.DistanceKm, o.ETAMinutes),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}

// offers reports whether a driver with serviceTypes can take a want request.
// Drivers that list no types only match requests for any service.
func offers(serviceTypes []string, want string) bool {
	if want == "" || want == dispatch.ServiceAny {
		return true
	}
	return slices.Contains(serviceTypes, want)
}

func usable(c dispatch.Candidate) bool {
	if c.Location.Validate() != nil || c.CompletedJobs < 0 {
		return false
	}
	if c.Rating != nil && (math.IsNaN(*c.Rating) || *c.Rating < 0 || *c.Rating > dispatch.MaxRating) {
		return false
	}
	return true
}
