package maps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"kwenda/internal/types"
)

func newTestRouteService(t *testing.T, body string) (*RouteService, *url.Values) {
	t.Helper()
	var seen url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	svc, err := NewRouteService("test-key", maps.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return svc, &seen
}

func TestDriveMinutes(t *testing.T) {
	svc, seen := newTestRouteService(t, `{
		"status": "OK",
		"routes": [{"legs": [{"duration": {"value": 421, "text": "7 mins"}, "distance": {"value": 3100, "text": "3.1 km"}}]}]
	}`)

	from := types.Point{Lat: -4.3217, Lng: 15.3069}
	to := types.Point{Lat: -4.33, Lng: 15.31}
	minutes, err := svc.DriveMinutes(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 8, minutes, "421s rounds up to 8 minutes")

	q := *seen
	assert.Equal(t, "-4.321700,15.306900", q.Get("origin"))
	assert.Equal(t, "-4.330000,15.310000", q.Get("destination"))
	assert.Equal(t, "driving", q.Get("mode"))
}

func TestDriveMinutes_NoRoute(t *testing.T) {
	svc, _ := newTestRouteService(t, `{"status": "ZERO_RESULTS", "routes": []}`)
	_, err := svc.DriveMinutes(context.Background(), types.Point{}, types.Point{Lat: 1, Lng: 1})
	assert.Error(t, err)
}
