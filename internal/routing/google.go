package routing

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"dispatchmap/internal/model"
	"dispatchmap/internal/obs"
)

type directionsAPI interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// Google uses the Directions API through the official client.
type Google struct {
	client directionsAPI
}

func NewGoogle(c directionsAPI) *Google { return &Google{client: c} }

func (g *Google) Name() string { return "google" }

func (g *Google) Route(ctx context.Context, from, to model.GeoPoint) (_ model.RouteData, err error) {
	defer obs.Time(ctx, "routing.google")(&err)

	req := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", from.Lat, from.Lng),
		Destination: fmt.Sprintf("%f,%f", to.Lat, to.Lng),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, req)
	if err != nil {
		return model.RouteData{}, fmt.Errorf("google route: %w", redact(err))
	}
	if len(routes) == 0 {
		return model.RouteData{}, fmt.Errorf("google route: %w", ErrNoRoute)
	}
	r := routes[0]
	pts, err := r.OverviewPolyline.Decode()
	if err != nil {
		return model.RouteData{}, fmt.Errorf("google route: decode polyline: %w", err)
	}
	rd := model.RouteData{
		Polyline: model.Polyline{Format: model.PolylineLatLng, Encoded: r.OverviewPolyline.Points},
	}
	for _, p := range pts {
		rd.Polyline.Coords = append(rd.Polyline.Coords, [2]float64{p.Lat, p.Lng})
	}
	for _, leg := range r.Legs {
		rd.DistanceM += float64(leg.Distance.Meters)
		rd.DurationS += leg.Duration.Seconds()
	}
	return finish(rd, g.Name()), nil
}
