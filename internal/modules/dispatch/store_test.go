package dispatch

import (
	"context"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kwenda/internal/geo"
	"kwenda/internal/types"
)

// redisEarthRadiusKm is the radius Redis GEO commands measure with.
const redisEarthRadiusKm = 6372.797560856

func TestSearchRadiusKm_CoversRedisMetric(t *testing.T) {
	for _, radius := range []float64{0.5, 5, 10, 25, 200} {
		// A driver exactly on the radius by our haversine, as Redis measures it
		// plus a metre of geohash rounding.
		redisDist := radius/geo.EarthRadiusKm*redisEarthRadiusKm + 0.001
		assert.Greater(t, searchRadiusKm(radius), redisDist, "radius %v", radius)
	}
}

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	redisAddr := os.Getenv("KWENDA_REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("KWENDA_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb), rdb
}

func TestStore_UpsertAndOnlineCandidates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	suffix := time.Now().UnixNano()
	near := types.ID(fmt.Sprintf("driver_near_%d", suffix))
	offline := types.ID(fmt.Sprintf("driver_offline_%d", suffix))
	serviceType := fmt.Sprintf("moto_%d", suffix)
	t.Cleanup(func() {
		_ = store.Remove(ctx, near)
		_ = store.Remove(ctx, offline)
	})

	r := 4.7
	require.NoError(t, store.Upsert(ctx, DriverState{
		ID: near, Location: types.Point{Lat: -4.33, Lng: 15.31}, Rating: &r, CompletedJobs: 42,
		ServiceTypes: []string{serviceType}, Available: true,
	}))
	require.NoError(t, store.Upsert(ctx, DriverState{
		ID: offline, Location: types.Point{Lat: -4.32, Lng: 15.30},
		ServiceTypes: []string{serviceType}, Available: false,
	}))

	got, err := store.OnlineCandidates(ctx, kinshasa, 10, serviceType)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, near, got[0].ID)
	require.NotNil(t, got[0].Rating)
	assert.Equal(t, 4.7, *got[0].Rating)
	assert.Equal(t, 42, got[0].CompletedJobs)
	assert.Equal(t, types.Point{Lat: -4.33, Lng: 15.31}, got[0].Location, "profile coordinates, not the geohash cell")

	require.NoError(t, store.SetAvailability(ctx, offline, true))
	got, err = store.OnlineCandidates(ctx, kinshasa, 10, serviceType)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	d, ok, err := store.Get(ctx, offline)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, d.Rating)
	assert.Contains(t, d.ServiceTypes, serviceType)

	assert.ErrorIs(t, store.SetAvailability(ctx, types.ID(fmt.Sprintf("ghost_%d", suffix)), true), ErrUnknownDriver)
}

func TestStore_KeepsDriverAtRadiusEdge(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	suffix := time.Now().UnixNano()
	edge := types.ID(fmt.Sprintf("driver_edge_%d", suffix))
	outside := types.ID(fmt.Sprintf("driver_outside_%d", suffix))
	serviceType := fmt.Sprintf("car_%d", suffix)
	t.Cleanup(func() {
		_ = store.Remove(ctx, edge)
		_ = store.Remove(ctx, outside)
	})

	// Due north of the pickup, 1m inside and 5m outside a 10km radius.
	north := func(km float64) types.Point {
		return types.Point{Lat: kinshasa.Lat + km/geo.EarthRadiusKm*180/math.Pi, Lng: kinshasa.Lng}
	}
	require.NoError(t, store.Upsert(ctx, DriverState{ID: edge, Location: north(9.999), ServiceTypes: []string{serviceType}, Available: true}))
	require.NoError(t, store.Upsert(ctx, DriverState{ID: outside, Location: north(10.005), ServiceTypes: []string{serviceType}, Available: true}))

	got, err := store.OnlineCandidates(ctx, kinshasa, 10, serviceType)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, edge, got[0].ID)

	scored, err := Score(Request{Pickup: kinshasa, MaxDistanceKm: 10}, got)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.LessOrEqual(t, scored[0].DistanceKm, 10.0)
}
