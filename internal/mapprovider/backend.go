package mapprovider

import (
	"fmt"
	"strings"

	"dispatchmap/internal/model"
)

// Backend is the map widget family a view renders into.
type Backend string

const (
	Leaflet Backend = "leaflet"
	HERE    Backend = "here"
	Mapy    Backend = "mapy"
)

// Backends lists the supported widgets in display order.
var Backends = []Backend{Leaflet, HERE, Mapy}

// ParseBackend accepts the canonical names plus a few aliases.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "leaflet", "osm", "openstreetmap":
		return Leaflet, nil
	case "here":
		return HERE, nil
	case "mapy", "mapy.cz", "mapycz":
		return Mapy, nil
	}
	return "", fmt.Errorf("unknown map provider %q", s)
}

// DefaultRouter is the routing backend each widget pairs with when none is configured.
func (b Backend) DefaultRouter() string {
	switch b {
	case HERE:
		return "here"
	case Mapy:
		return "mapy"
	default:
		return "osrm"
	}
}

// Style is sent with every drawn route; the widget maps it to its own API.
type Style struct {
	Color     string  `json:"color"`
	Weight    int     `json:"weight"`
	Opacity   float64 `json:"opacity"`
	DashArray string  `json:"dashArray,omitempty"`
}

func (b Backend) routeStyle(highlighted bool, failed bool) Style {
	s := Style{Color: "#3388ff", Weight: 4, Opacity: 0.7}
	switch b {
	case HERE:
		s.Color = "#00afaa"
	case Mapy:
		s.Color = "#0e6b2f"
	}
	if failed {
		s.DashArray = "6 6"
		s.Opacity = 0.5
	}
	if highlighted {
		s.Color = "#ff7800"
		s.Weight = 7
		s.Opacity = 1
	}
	return s
}

// polyline converts router output into the shape the widget consumes.
func (b Backend) polyline(p model.Polyline) model.Polyline {
	switch b {
	case HERE:
		if p.Encoded != "" && p.Format != model.PolylineGoogle {
			return model.Polyline{Format: model.PolylineFlexible, Encoded: p.Encoded}
		}
		return model.Polyline{Format: model.PolylineLatLng, Coords: p.Coords}
	case Mapy:
		out := make([][2]float64, len(p.Coords))
		for i, c := range p.Coords {
			out[i] = [2]float64{c[1], c[0]}
		}
		return model.Polyline{Format: model.PolylineLngLat, Coords: out}
	default:
		return model.Polyline{Format: model.PolylineLatLng, Coords: p.Coords}
	}
}
