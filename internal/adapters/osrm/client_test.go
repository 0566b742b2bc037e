package osrm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namtang/stopmap/internal/core/domain"
)

var (
	siam    = domain.LatLng{Lat: 13.7456, Lng: 100.5340}
	chitLom = domain.LatLng{Lat: 13.7441, Lng: 100.5430}
)

func TestClient_URL(t *testing.T) {
	c := New("http://osrm.local/", "", time.Second)
	assert.Equal(t,
		"http://osrm.local/route/v1/driving/100.534000,13.745600;100.543000,13.744100?overview=full&geometries=geojson",
		c.URL(siam, chitLom))
}

func TestClient_RouteInvertsCoordinates(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":1000,"duration":120,
			"geometry":{"type":"LineString","coordinates":[[100.534,13.7456],[100.538,13.7450],[100.543,13.7441]]}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "foot", time.Second)
	route, err := c.Route(context.Background(), siam, chitLom)
	require.NoError(t, err)

	assert.Equal(t, "/route/v1/foot/100.534000,13.745600;100.543000,13.744100", gotPath)
	require.Len(t, route, 3)
	assert.Equal(t, domain.LatLng{Lat: 13.7456, Lng: 100.534}, route[0])
	assert.Equal(t, domain.LatLng{Lat: 13.7450, Lng: 100.538}, route[1])
	assert.Equal(t, domain.LatLng{Lat: 13.7441, Lng: 100.543}, route[2])
}

func TestClient_RouteErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"server error", http.StatusInternalServerError, "boom", 500},
		{"no route", http.StatusOK, `{"code":"NoRoute","message":"Impossible route","routes":[]}`, 0},
		{"empty routes", http.StatusOK, `{"code":"Ok","routes":[]}`, 0},
		{"point geometry", http.StatusOK, `{"code":"Ok","routes":[{"geometry":{"type":"Point","coordinates":[100.5,13.7]}}]}`, 0},
		{"garbage", http.StatusOK, `not json`, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "", time.Second).Route(context.Background(), siam, chitLom)
			var fetchErr *domain.FetchError
			require.True(t, errors.As(err, &fetchErr), "expected FetchError, got %v", err)
			assert.Equal(t, tt.wantStatus, fetchErr.Status)
		})
	}
}

func TestClient_RouteUsesContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(srv.URL, "", 10*time.Second).Route(ctx, siam, chitLom)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
