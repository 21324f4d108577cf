// README: Driver pool backed by Redis GEO sets (one per service type) and a profile hash per driver.
package dispatch

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kwenda/internal/geo"
	"kwenda/internal/types"
)

const (
	driverGeoKeyPrefix = "dispatch:drivers:%s"
	driverProfileKey   = "dispatch:driver:%s"
	// Profiles of drivers that stop reporting fall out of the pool.
	profileTTL = 24 * time.Hour
	// Redis GEO measures with a 6372.797 km Earth radius and geohash-rounded
	// positions, so the index is searched slightly wider and the exact
	// radius is applied to the profile coordinates.
	geoSearchMargin = 0.001
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// Upsert stores the driver profile and indexes the driver under each of its
// service types while it is available.
func (s *Store) Upsert(ctx context.Context, d DriverState) error {
	serviceTypes := withAny(d.ServiceTypes)

	fields := map[string]interface{}{
		"lat":            strconv.FormatFloat(d.Location.Lat, 'f', -1, 64),
		"lng":            strconv.FormatFloat(d.Location.Lng, 'f', -1, 64),
		"completed_jobs": d.CompletedJobs,
		"service_types":  strings.Join(serviceTypes, ","),
		"available":      boolFlag(d.Available),
	}
	if d.Rating != nil {
		fields["rating"] = strconv.FormatFloat(*d.Rating, 'f', -1, 64)
	}

	pipe := s.redis.TxPipeline()
	key := profileKey(d.ID)
	pipe.HDel(ctx, key, "rating")
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, profileTTL)
	for _, st := range serviceTypes {
		if d.Available {
			pipe.GeoAdd(ctx, geoKey(st), &redis.GeoLocation{
				Name:      string(d.ID),
				Longitude: d.Location.Lng,
				Latitude:  d.Location.Lat,
			})
		} else {
			pipe.ZRem(ctx, geoKey(st), string(d.ID))
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SetAvailability toggles a known driver in or out of the GEO indexes.
func (s *Store) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	d, ok, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownDriver
	}
	d.Available = available
	return s.Upsert(ctx, d)
}

// Get returns the stored state of a driver and whether it exists.
func (s *Store) Get(ctx context.Context, id types.ID) (DriverState, bool, error) {
	fields, err := s.redis.HGetAll(ctx, profileKey(id)).Result()
	if err != nil {
		return DriverState{}, false, err
	}
	if len(fields) == 0 {
		return DriverState{}, false, nil
	}
	d, err := parseProfile(id, fields)
	if err != nil {
		return DriverState{}, false, err
	}
	return d, true, nil
}

// Remove drops a driver from every index.
func (s *Store) Remove(ctx context.Context, id types.ID) error {
	d, ok, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	if ok {
		for _, st := range withAny(d.ServiceTypes) {
			pipe.ZRem(ctx, geoKey(st), string(id))
		}
	} else {
		pipe.ZRem(ctx, geoKey(ServiceAny), string(id))
	}
	pipe.Del(ctx, profileKey(id))
	_, err = pipe.Exec(ctx)
	return err
}

// OnlineCandidates implements CandidateSource.
func (s *Store) OnlineCandidates(ctx context.Context, pickup types.Point, radiusKm float64, serviceType string) ([]Candidate, error) {
	if serviceType == "" {
		serviceType = ServiceAny
	}
	names, err := s.redis.GeoSearch(ctx, geoKey(serviceType), &redis.GeoSearchQuery{
		Longitude:  pickup.Lng,
		Latitude:   pickup.Lat,
		Radius:     searchRadiusKm(radiusKm),
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []Candidate{}, nil
	}

	pipe := s.redis.Pipeline()
	profiles := make([]*redis.MapStringStringCmd, len(names))
	for i, name := range names {
		profiles[i] = pipe.HGetAll(ctx, profileKey(types.ID(name)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("loading driver profiles: %w", err)
	}

	candidates := make([]Candidate, 0, len(names))
	for i, name := range names {
		fields := profiles[i].Val()
		// Expired profile or stale index entry.
		if len(fields) == 0 || fields["available"] != "1" {
			continue
		}
		d, err := parseProfile(types.ID(name), fields)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(d.ServiceTypes, serviceType) {
			continue
		}
		if !(geo.HaversineKm(pickup, d.Location) <= radiusKm) {
			continue
		}
		candidates = append(candidates, d.candidate())
	}
	return candidates, nil
}

func parseProfile(id types.ID, fields map[string]string) (DriverState, error) {
	d := DriverState{ID: id, Available: fields["available"] == "1"}
	var err error
	if d.Location.Lat, err = strconv.ParseFloat(fields["lat"], 64); err != nil {
		return DriverState{}, fmt.Errorf("driver %s: bad lat: %w", id, err)
	}
	if d.Location.Lng, err = strconv.ParseFloat(fields["lng"], 64); err != nil {
		return DriverState{}, fmt.Errorf("driver %s: bad lng: %w", id, err)
	}
	if v, ok := fields["rating"]; ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return DriverState{}, fmt.Errorf("driver %s: bad rating: %w", id, err)
		}
		d.Rating = &r
	}
	if v := fields["completed_jobs"]; v != "" {
		if d.CompletedJobs, err = strconv.Atoi(v); err != nil {
			return DriverState{}, fmt.Errorf("driver %s: bad completed_jobs: %w", id, err)
		}
	}
	if v := fields["service_types"]; v != "" {
		d.ServiceTypes = strings.Split(v, ",")
	}
	return d, nil
}

func searchRadiusKm(radiusKm float64) float64 {
	return radiusKm * (1 + geoSearchMargin)
}

func withAny(serviceTypes []string) []string {
	out := []string{ServiceAny}
	for _, st := range serviceTypes {
		if st != "" && st != ServiceAny {
			out = append(out, st)
		}
	}
	return out
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func geoKey(serviceType string) string {
	return fmt.Sprintf(driverGeoKeyPrefix, serviceType)
}

func profileKey(id types.ID) string {
	return fmt.Sprintf(driverProfileKey, string(id))
}
