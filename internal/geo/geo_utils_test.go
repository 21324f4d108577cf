package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"kwenda/internal/types"
)

var kinshasa = types.Point{Lat: -4.3217, Lng: 15.3069}

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         kinshasa,
			b:         kinshasa,
			wantKm:    0,
			tolerance: 1e-12,
		},
		{
			name:      "Kinshasa centre to Ngaliema (~14.1km)",
			a:         kinshasa,
			b:         types.Point{Lat: -4.4419, Lng: 15.2663},
			wantKm:    14.1,
			tolerance: 0.5,
		},
		{
			name:      "Kinshasa to Brazzaville across the river (~9.6km)",
			a:         kinshasa,
			b:         types.Point{Lat: -4.2634, Lng: 15.2429},
			wantKm:    9.6,
			tolerance: 1.0,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			assert.InDelta(t, tt.wantKm, got, tt.tolerance)
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	pairs := [][2]types.Point{
		{kinshasa, {Lat: -4.4419, Lng: 15.2663}},
		{{Lat: 25.0, Lng: 121.0}, {Lat: 26.0, Lng: 122.0}},
		{{Lat: -89.9, Lng: -179.9}, {Lat: 89.9, Lng: 179.9}},
		{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 180}},
	}
	for _, p := range pairs {
		d1 := HaversineKm(p[0], p[1])
		d2 := HaversineKm(p[1], p[0])
		assert.InDelta(t, d1, d2, 1e-9, "haversine is not symmetric for %v", p)
	}
}

func TestHaversineKm_NearAntipodal(t *testing.T) {
	halfCircumference := math.Pi * EarthRadiusKm

	got := HaversineKm(types.Point{Lat: 45, Lng: 0}, types.Point{Lat: -45 + 3e-9, Lng: 180})
	assert.False(t, math.IsNaN(got))
	assert.InDelta(t, halfCircumference, got, 0.01)

	// Sweep tiny offsets around exact antipodes; rounding must never yield NaN.
	for lat := -89.0; lat <= 89.0; lat += 7.3 {
		for _, eps := range []float64{0, 1e-12, 3e-9, -3e-9, 1e-7} {
			a := types.Point{Lat: lat, Lng: 10}
			b := types.Point{Lat: -lat + eps, Lng: -170 + eps}
			d := HaversineKm(a, b)
			assert.False(t, math.IsNaN(d), "NaN for %v -> %v", a, b)
			assert.LessOrEqual(t, d, halfCircumference+1e-6)
		}
	}
}

type ranked struct {
	id   string
	dist float64
}

func TestSortByDistance(t *testing.T) {
	items := []ranked{{"c", 5.0}, {"a", 1.0}, {"b", 3.0}}
	SortByDistance(items, func(r ranked) float64 { return r.dist })
	assert.Equal(t, []ranked{{"a", 1.0}, {"b", 3.0}, {"c", 5.0}}, items)
}

func TestSortByDistance_StableOnTies(t *testing.T) {
	items := []ranked{{"x", 2.0}, {"y", 1.0}, {"z", 2.0}}
	SortByDistance(items, func(r ranked) float64 { return r.dist })
	assert.Equal(t, []ranked{{"y", 1.0}, {"x", 2.0}, {"z", 2.0}}, items)
}

func TestSortByDistance_EmptyAndSingle(t *testing.T) {
	var empty []ranked
	SortByDistance(empty, func(r ranked) float64 { return r.dist })
	assert.Empty(t, empty)

	single := []ranked{{"a", 2.0}}
	SortByDistance(single, func(r ranked) float64 { return r.dist })
	assert.Equal(t, "a", single[0].id)
}
