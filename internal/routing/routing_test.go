package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"dispatchmap/internal/model"
)

var (
	prague = model.GeoPoint{Lat: 50.0755, Lng: 14.4378}
	brno   = model.GeoPoint{Lat: 49.1951, Lng: 16.6068}
)

func testClient() *httpClient {
	return &httpClient{http: &http.Client{Timeout: time.Second}, maxAttempts: 3, backoff: time.Millisecond}
}

func TestOSRMRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/driving/14.437800,50.075500;16.606800,49.195100"), r.URL.Path)
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":205000,"duration":7600,"geometry":{"coordinates":[[14.4378,50.0755],[15.5,49.6],[16.6068,49.1951]]}}]}`)
	}))
	defer srv.Close()

	rd, err := NewOSRM(srv.URL, testClient()).Route(context.Background(), prague, brno)
	require.NoError(t, err)
	assert.Equal(t, model.SegmentCalculated, rd.Status)
	assert.Equal(t, "osrm", rd.Source)
	assert.Equal(t, 205000.0, rd.DistanceM)
	assert.Equal(t, 7600.0, rd.DurationS)
	require.Len(t, rd.Polyline.Coords, 3)
	assert.Equal(t, [2]float64{50.0755, 14.4378}, rd.Polyline.Coords[0])
	require.NotNil(t, rd.BBox)
	assert.Equal(t, 49.1951, rd.BBox.South)
}

func TestOSRMNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"NoRoute","message":"Impossible route","routes":[]}`)
	}))
	defer srv.Close()

	_, err := NewOSRM(srv.URL, testClient()).Route(context.Background(), prague, brno)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":1,"duration":2,"geometry":{"coordinates":[[1,2],[3,4]]}}]}`)
	}))
	defer srv.Close()

	rd, err := NewOSRM(srv.URL, testClient()).Route(context.Background(), prague, brno)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1.0, rd.DistanceM)
}

func TestNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewOSRM(srv.URL, testClient()).Route(context.Background(), prague, brno)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDecodeFlexible(t *testing.T) {
	pts, err := decodeFlexible("BFoz5xJ67i1B1B7PzIhaxL7Y")
	require.NoError(t, err)
	want := [][2]float64{{50.10228, 8.69821}, {50.10201, 8.69567}, {50.10063, 8.6915}, {50.09878, 8.68752}}
	require.Len(t, pts, len(want))
	for i := range want {
		assert.InDelta(t, want[i][0], pts[i][0], 1e-6)
		assert.InDelta(t, want[i][1], pts[i][1], 1e-6)
	}

	_, err = decodeFlexible("B*")
	assert.Error(t, err)
}

func TestHEREErrorHidesAPIKey(t *testing.T) {
	r, err := New(Config{Backend: "here", BaseURL: "http://127.0.0.1:1", APIKey: "SECRET-KEY-123", Timeout: time.Second})
	require.NoError(t, err)
	r.(*HERE).client.backoff = time.Millisecond

	_, err = r.Route(context.Background(), prague, brno)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-KEY-123")
	assert.Contains(t, err.Error(), "apikey=REDACTED")
	assert.Equal(t, "routing provider unreachable", Reason(err))
}

func TestReason(t *testing.T) {
	assert.Empty(t, Reason(nil))
	assert.Equal(t, "no route found", Reason(fmt.Errorf("osrm: %w", ErrNoRoute)))
	assert.Equal(t, "routing provider returned 503", Reason(&StatusError{Code: 503, Body: "key=abc"}))
	assert.Equal(t, "routing timed out", Reason(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, "routing failed", Reason(errors.New("apikey=abc rejected")))
}

func TestHERERoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/routes", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("apikey"))
		assert.Equal(t, "car", r.URL.Query().Get("transportMode"))
		fmt.Fprint(w, `{"routes":[{"sections":[{"polyline":"BFoz5xJ67i1B1B7PzIhaxL7Y","summary":{"length":850,"duration":120}}]}]}`)
	}))
	defer srv.Close()

	rd, err := NewHERE(srv.URL, "k", testClient()).Route(context.Background(), prague, brno)
	require.NoError(t, err)
	assert.Equal(t, 850.0, rd.DistanceM)
	assert.Equal(t, 120.0, rd.DurationS)
	assert.Len(t, rd.Polyline.Coords, 4)
	assert.Equal(t, "BFoz5xJ67i1B1B7PzIhaxL7Y", rd.Polyline.Encoded)
}

func TestMapyRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/routing/route", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Mapy-Api-Key"))
		assert.Equal(t, "14.437800,50.075500", r.URL.Query().Get("start"))
		fmt.Fprint(w, `{"length":206000,"duration":7500,"geometry":{"type":"Feature","geometry":{"type":"LineString","coordinates":[[14.4378,50.0755],[16.6068,49.1951]]}}}`)
	}))
	defer srv.Close()

	rd, err := NewMapy(srv.URL, "secret", testClient()).Route(context.Background(), prague, brno)
	require.NoError(t, err)
	assert.Equal(t, "mapy", rd.Source)
	assert.Equal(t, [2]float64{49.1951, 16.6068}, rd.Polyline.Coords[1])
}

type fakeDirections struct {
	routes []maps.Route
	err    error
}

func (f fakeDirections) Directions(context.Context, *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	return f.routes, nil, f.err
}

func TestGoogleRoute(t *testing.T) {
	enc := maps.Encode([]maps.LatLng{{Lat: 50.0755, Lng: 14.4378}, {Lat: 49.1951, Lng: 16.6068}})
	leg := &maps.Leg{}
	leg.Distance.Meters = 205500
	leg.Duration = 2 * time.Hour
	g := NewGoogle(fakeDirections{routes: []maps.Route{{
		OverviewPolyline: maps.Polyline{Points: enc},
		Legs:             []*maps.Leg{leg},
	}}})

	rd, err := g.Route(context.Background(), prague, brno)
	require.NoError(t, err)
	assert.Equal(t, 205500.0, rd.DistanceM)
	assert.Equal(t, 7200.0, rd.DurationS)
	require.Len(t, rd.Polyline.Coords, 2)
	assert.InDelta(t, 49.1951, rd.Polyline.Coords[1][0], 1e-5)

	_, err = NewGoogle(fakeDirections{}).Route(context.Background(), prague, brno)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestGoogleErrorHidesAPIKey(t *testing.T) {
	leak := &url.Error{
		Op:  "Get",
		URL: "https://maps.googleapis.com/maps/api/directions/json?destination=49.2%2C16.6&key=AIza-SECRET&origin=50.1%2C14.4",
		Err: errors.New("connection reset by peer"),
	}
	_, err := NewGoogle(fakeDirections{err: leak}).Route(context.Background(), prague, brno)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AIza-SECRET")
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestStraightNeverFails(t *testing.T) {
	rd, err := Straight{}.Route(context.Background(), prague, brno)
	require.NoError(t, err)
	assert.Equal(t, model.SegmentCalculated, rd.Status)
	assert.Empty(t, rd.Error)
	assert.Greater(t, rd.DistanceM, 150000.0)
}

type countingRouter struct {
	calls atomic.Int32
	err   error
}

func (c *countingRouter) Name() string { return "counting" }
func (c *countingRouter) Route(ctx context.Context, from, to model.GeoPoint) (model.RouteData, error) {
	c.calls.Add(1)
	if c.err != nil {
		return model.RouteData{}, c.err
	}
	return Straight{}.Route(ctx, from, to)
}

func TestCachedRouter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := &countingRouter{}
	c := NewCached(next, rdb, time.Minute)
	first, err := c.Route(context.Background(), prague, brno)
	require.NoError(t, err)
	second, err := c.Route(context.Background(), prague, brno)
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, first.DistanceM, second.DistanceM)
	assert.Equal(t, "counting", c.Name())

	// failures are not cached
	failing := &countingRouter{err: errors.New("down")}
	fc := NewCached(failing, rdb, time.Minute)
	_, err = fc.Route(context.Background(), brno, prague)
	require.Error(t, err)
	_, err = fc.Route(context.Background(), brno, prague)
	require.Error(t, err)
	assert.Equal(t, int32(2), failing.calls.Load())
}

func TestNewSelectsBackend(t *testing.T) {
	r, err := New(Config{Backend: "osrm"})
	require.NoError(t, err)
	assert.Equal(t, "osrm", r.Name())

	_, err = New(Config{Backend: "here"})
	assert.Error(t, err, "here needs an api key")

	r, err = New(Config{Backend: "google", APIKey: "AIza-test"})
	require.NoError(t, err)
	assert.Equal(t, "google", r.Name())

	_, err = New(Config{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}
