// Package routing computes the road geometry, distance and duration between
// two stops. Each backend talks to one routing service; the map provider
// adapters pick one and the segment manager never sees which.
package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"dispatchmap/internal/geo"
	"dispatchmap/internal/model"
)

// Router computes RouteData for a from/to pair. Implementations must be safe
// for concurrent use.
type Router interface {
	Name() string
	Route(ctx context.Context, from, to model.GeoPoint) (model.RouteData, error)
}

var ErrNoRoute = errors.New("no route found")

// Config selects and tunes a Router.
type Config struct {
	Backend   string        // osrm, here, mapy, google, straight
	BaseURL   string        // overrides the public endpoint
	APIKey    string
	RPS       float64       // outbound requests per second, 0 = unlimited
	Burst     int
	Timeout   time.Duration // per HTTP attempt
	Estimator geo.Estimator // for the straight-line backend
}

// New builds the router named by cfg.Backend.
func New(cfg Config) (Router, error) {
	hc := newHTTPClient(cfg)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "osrm", "osm":
		return NewOSRM(cfg.BaseURL, hc), nil
	case "here":
		if cfg.APIKey == "" {
			return nil, errors.New("here router: api key is empty")
		}
		return NewHERE(cfg.BaseURL, cfg.APIKey, hc), nil
	case "mapy", "mapy.cz":
		if cfg.APIKey == "" {
			return nil, errors.New("mapy router: api key is empty")
		}
		return NewMapy(cfg.BaseURL, cfg.APIKey, hc), nil
	case "google":
		if cfg.APIKey == "" {
			return nil, errors.New("google router: api key is empty")
		}
		opts := []maps.ClientOption{maps.WithAPIKey(cfg.APIKey), maps.WithHTTPClient(hc.http)}
		if cfg.BaseURL != "" {
			opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
		}
		if cfg.RPS > 0 {
			opts = append(opts, maps.WithRateLimit(int(cfg.RPS+0.5)))
		}
		c, err := maps.NewClient(opts...)
		if err != nil {
			return nil, fmt.Errorf("google router: %w", err)
		}
		return NewGoogle(c), nil
	case "straight", "straight-line":
		return Straight{Estimator: cfg.Estimator}, nil
	default:
		return nil, fmt.Errorf("unknown routing backend %q", cfg.Backend)
	}
}

func newHTTPClient(cfg Config) *httpClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := &httpClient{
		http:        &http.Client{Timeout: timeout},
		maxAttempts: 4,
		backoff:     200 * time.Millisecond,
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		hc.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return hc
}

// finish fills the fields every backend sets the same way.
func finish(rd model.RouteData, source string) model.RouteData {
	rd.Status = model.SegmentCalculated
	rd.CalculatedAt = time.Now().UTC()
	rd.Source = source
	if rd.BBox == nil && len(rd.Polyline.Coords) > 0 {
		pts := make([]model.GeoPoint, 0, len(rd.Polyline.Coords))
		for _, c := range rd.Polyline.Coords {
			pts = append(pts, model.GeoPoint{Lat: c[0], Lng: c[1]})
		}
		bb := geo.Bounds(pts)
		rd.BBox = &bb
	}
	return rd
}

// Straight never fails; it is the geometric estimate promoted to a result.
type Straight struct {
	Estimator geo.Estimator
}

func (Straight) Name() string { return "straight" }

func (s Straight) Route(_ context.Context, from, to model.GeoPoint) (model.RouteData, error) {
	rd := s.Estimator.Fallback(from, to, "")
	return finish(rd, "straight-line"), nil
}
