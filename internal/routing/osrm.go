package routing

import (
	"context"
	"fmt"
	"strings"

	"dispatchmap/internal/model"
	"dispatchmap/internal/obs"
)

const osrmPublicURL = "https://router.project-osrm.org"

// OSRM routes over OpenStreetMap data; it backs the Leaflet map.
type OSRM struct {
	baseURL string
	client  *httpClient
}

func NewOSRM(baseURL string, hc *httpClient) *OSRM {
	if baseURL == "" {
		baseURL = osrmPublicURL
	}
	return &OSRM{baseURL: strings.TrimRight(baseURL, "/"), client: hc}
}

func (o *OSRM) Name() string { return "osrm" }

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"` // [lng, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

func (o *OSRM) Route(ctx context.Context, from, to model.GeoPoint) (_ model.RouteData, err error) {
	defer obs.Time(ctx, "routing.osrm")(&err)

	// OSRM takes lng,lat pairs
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		o.baseURL, from.Lng, from.Lat, to.Lng, to.Lat)
	var resp osrmResponse
	if err := o.client.getJSON(ctx, url, nil, &resp); err != nil {
		return model.RouteData{}, fmt.Errorf("osrm route: %w", err)
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return model.RouteData{}, fmt.Errorf("osrm route: %w: %s %s", ErrNoRoute, resp.Code, resp.Message)
	}
	r := resp.Routes[0]
	coords := make([][2]float64, 0, len(r.Geometry.Coordinates))
	for _, c := range r.Geometry.Coordinates {
		coords = append(coords, [2]float64{c[1], c[0]})
	}
	return finish(model.RouteData{
		Polyline:  model.Polyline{Format: model.PolylineLatLng, Coords: coords},
		DistanceM: r.Distance,
		DurationS: r.Duration,
	}, o.Name()), nil
}
