package routing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/heremaps/flexible-polyline/golang/flexpolyline"

	"dispatchmap/internal/model"
	"dispatchmap/internal/obs"
)

const herePublicURL = "https://router.hereapi.com"

// HERE calls the HERE Routing API v8.
type HERE struct {
	baseURL string
	apiKey  string
	client  *httpClient
}

func NewHERE(baseURL, apiKey string, hc *httpClient) *HERE {
	if baseURL == "" {
		baseURL = herePublicURL
	}
	return &HERE{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: hc}
}

func (h *HERE) Name() string { return "here" }

type hereResponse struct {
	Routes []struct {
		Sections []struct {
			Polyline string `json:"polyline"`
			Summary  struct {
				Length   float64 `json:"length"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"sections"`
	} `json:"routes"`
	Notices []struct {
		Title string `json:"title"`
	} `json:"notices"`
}

func (h *HERE) Route(ctx context.Context, from, to model.GeoPoint) (_ model.RouteData, err error) {
	defer obs.Time(ctx, "routing.here")(&err)

	q := url.Values{}
	q.Set("transportMode", "car")
	q.Set("origin", fmt.Sprintf("%f,%f", from.Lat, from.Lng))
	q.Set("destination", fmt.Sprintf("%f,%f", to.Lat, to.Lng))
	q.Set("return", "polyline,summary")
	q.Set("apikey", h.apiKey)

	var resp hereResponse
	if err := h.client.getJSON(ctx, h.baseURL+"/v8/routes?"+q.Encode(), nil, &resp); err != nil {
		return model.RouteData{}, fmt.Errorf("here route: %w", err)
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Sections) == 0 {
		msg := ""
		if len(resp.Notices) > 0 {
			msg = resp.Notices[0].Title
		}
		return model.RouteData{}, fmt.Errorf("here route: %w: %s", ErrNoRoute, msg)
	}

	rd := model.RouteData{Polyline: model.Polyline{Format: model.PolylineLatLng}}
	sections := resp.Routes[0].Sections
	for _, s := range sections {
		pts, err := decodeFlexible(s.Polyline)
		if err != nil {
			return model.RouteData{}, fmt.Errorf("here route: decode polyline: %w", err)
		}
		rd.Polyline.Coords = append(rd.Polyline.Coords, pts...)
		rd.DistanceM += s.Summary.Length
		rd.DurationS += s.Summary.Duration
	}
	// a single section keeps its encoding so the HERE widget can use it directly
	if len(sections) == 1 {
		rd.Polyline.Encoded = sections[0].Polyline
	}
	return finish(rd, h.Name()), nil
}

// decodeFlexible returns the [lat, lng] pairs of a HERE flexible polyline.
// A third dimension, when present, is dropped.
func decodeFlexible(s string) ([][2]float64, error) {
	p, err := flexpolyline.Decode(s)
	if err != nil {
		return nil, err
	}
	coords := p.Coordinates()
	out := make([][2]float64, 0, len(coords))
	for _, c := range coords {
		out = append(out, [2]float64{c.Lat, c.Lng})
	}
	return out, nil
}
