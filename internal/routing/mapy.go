package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"dispatchmap/internal/model"
	"dispatchmap/internal/obs"
)

const mapyPublicURL = "https://api.mapy.cz"

// Mapy calls the Mapy.cz REST routing endpoint.
type Mapy struct {
	baseURL string
	apiKey  string
	client  *httpClient
}

func NewMapy(baseURL, apiKey string, hc *httpClient) *Mapy {
	if baseURL == "" {
		baseURL = mapyPublicURL
	}
	return &Mapy{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: hc}
}

func (m *Mapy) Name() string { return "mapy" }

type mapyResponse struct {
	Length   float64 `json:"length"`
	Duration float64 `json:"duration"`
	Geometry struct {
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"` // [lng, lat]
		} `json:"geometry"`
	} `json:"geometry"`
}

func (m *Mapy) Route(ctx context.Context, from, to model.GeoPoint) (_ model.RouteData, err error) {
	defer obs.Time(ctx, "routing.mapy")(&err)

	q := url.Values{}
	q.Set("start", fmt.Sprintf("%f,%f", from.Lng, from.Lat))
	q.Set("end", fmt.Sprintf("%f,%f", to.Lng, to.Lat))
	q.Set("routeType", "car_fast")
	q.Set("format", "geojson")
	h := http.Header{}
	h.Set("X-Mapy-Api-Key", m.apiKey)

	var resp mapyResponse
	if err := m.client.getJSON(ctx, m.baseURL+"/v1/routing/route?"+q.Encode(), h, &resp); err != nil {
		return model.RouteData{}, fmt.Errorf("mapy route: %w", err)
	}
	src := resp.Geometry.Geometry.Coordinates
	if len(src) == 0 {
		return model.RouteData{}, fmt.Errorf("mapy route: %w", ErrNoRoute)
	}
	coords := make([][2]float64, 0, len(src))
	for _, c := range src {
		coords = append(coords, [2]float64{c[1], c[0]})
	}
	return finish(model.RouteData{
		Polyline:  model.Polyline{Format: model.PolylineLatLng, Coords: coords},
		DistanceM: resp.Length,
		DurationS: resp.Duration,
	}, m.Name()), nil
}
