package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kwenda/internal/types"
)

func candidateIDs(cs []Candidate) []types.ID {
	ids := make([]types.ID, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

func TestMemoryPool_RadiusAndAvailability(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()
	r := 4.5
	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "near", Location: types.Point{Lat: -4.33, Lng: 15.31}, Rating: &r, CompletedJobs: 3, Available: true}))
	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "mid", Location: types.Point{Lat: -4.40, Lng: 15.30}, Available: true}))
	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "far", Location: types.Point{Lat: -5.50, Lng: 15.30}, Available: true}))
	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "offline", Location: types.Point{Lat: -4.32, Lng: 15.31}, Available: false}))

	got, err := pool.OnlineCandidates(ctx, kinshasa, 5, "")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"near"}, candidateIDs(got))
	require.NotNil(t, got[0].Rating)
	assert.Equal(t, 4.5, *got[0].Rating)
	assert.Equal(t, 3, got[0].CompletedJobs)

	got, err = pool.OnlineCandidates(ctx, kinshasa, 10, ServiceAny)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"mid", "near"}, candidateIDs(got))

	// Wide radius falls back to a full scan.
	got, err = pool.OnlineCandidates(ctx, kinshasa, 200, "")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"far", "mid", "near"}, candidateIDs(got))

	require.NoError(t, pool.SetAvailability(ctx, "offline", true))
	got, err = pool.OnlineCandidates(ctx, kinshasa, 5, "")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"near", "offline"}, candidateIDs(got))
}

func TestMemoryPool_SkipsNearAntipodalDriver(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()
	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "far", Location: types.Point{Lat: -45 + 3e-9, Lng: 180}, Available: true}))

	for _, radius := range []float64{25, 500} {
		got, err := pool.OnlineCandidates(ctx, types.Point{Lat: 45, Lng: 0}, radius, "")
		require.NoError(t, err)
		assert.Empty(t, got, "radius %v", radius)
	}
}

func TestMemoryPool_MoveBetweenCells(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()
	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "d", Location: types.Point{Lat: 40.7, Lng: -74.0}, Available: true}))

	got, err := pool.OnlineCandidates(ctx, kinshasa, 10, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "d", Location: types.Point{Lat: -4.33, Lng: 15.31}, Available: true}))
	got, err = pool.OnlineCandidates(ctx, kinshasa, 10, "")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"d"}, candidateIDs(got))
	assert.Equal(t, 1, pool.Len())

	got, err = pool.OnlineCandidates(ctx, types.Point{Lat: 40.7, Lng: -74.0}, 10, "")
	require.NoError(t, err)
	assert.Empty(t, got, "old cell must no longer hold the driver")
}

func TestMemoryPool_ServiceTypes(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()
	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "taxi", Location: kinshasa, ServiceTypes: []string{"taxi"}, Available: true}))
	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "both", Location: kinshasa, ServiceTypes: []string{"taxi", "delivery"}, Available: true}))

	got, err := pool.OnlineCandidates(ctx, kinshasa, 1, "delivery")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"both"}, candidateIDs(got))

	got, err = pool.OnlineCandidates(ctx, kinshasa, 1, "taxi")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"both", "taxi"}, candidateIDs(got))

	got, err = pool.OnlineCandidates(ctx, kinshasa, 1, "moto")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryPool_RemoveAndErrors(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()
	require.NoError(t, pool.Upsert(ctx, DriverState{ID: "d", Location: kinshasa, Available: true}))
	require.NoError(t, pool.Remove(ctx, "d"))
	assert.Zero(t, pool.Len())

	assert.ErrorIs(t, pool.SetAvailability(ctx, "ghost", true), ErrUnknownDriver)
	assert.ErrorIs(t, pool.Upsert(ctx, DriverState{ID: "bad", Location: types.Point{Lat: 100}}), types.ErrInvalidPoint)
}

// TestMemoryPool_NeighbourLookupMatchesFullScan checks that the geohash
// shortcut never loses a driver the full scan would return.
func TestMemoryPool_NeighbourLookupMatchesFullScan(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()
	for i := 0; i < 30; i++ {
		for j := 0; j < 30; j++ {
			require.NoError(t, pool.Upsert(ctx, DriverState{
				ID:        types.ID(fmt.Sprintf("d_%02d_%02d", i, j)),
				Location:  types.Point{Lat: kinshasa.Lat - 0.3 + float64(i)*0.02, Lng: kinshasa.Lng - 0.3 + float64(j)*0.02},
				Available: true,
			}))
		}
	}

	for _, radius := range []float64{1, 5, 10, 15, 19} {
		got, err := pool.OnlineCandidates(ctx, kinshasa, radius, "")
		require.NoError(t, err)

		var want []types.ID
		for _, c := range mustFullScan(t, pool, radius) {
			want = append(want, c.ID)
		}
		assert.Equal(t, want, candidateIDs(got), "radius %v", radius)
	}
}

func mustFullScan(t *testing.T, pool *MemoryPool, radius float64) []Candidate {
	t.Helper()
	// A radius above the neighbour cover forces the full scan path; the result
	// is then cut back to the requested radius with Score's own filter.
	all, err := pool.OnlineCandidates(context.Background(), kinshasa, 1000, "")
	require.NoError(t, err)
	scored, err := Score(Request{Pickup: kinshasa, MaxDistanceKm: radius}, all)
	require.NoError(t, err)
	inRadius := make(map[types.ID]bool, len(scored))
	for _, s := range scored {
		inRadius[s.Candidate.ID] = true
	}
	var out []Candidate
	for _, c := range all {
		if inRadius[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
