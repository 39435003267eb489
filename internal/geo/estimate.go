// Package geo computes straight-line distances and the drive/handling time
// estimates shown between stops. Everything here is pure.
package geo

import (
	"fmt"
	"math"
	"strings"
	"time"

	"dispatchmap/internal/model"
)

const (
	// EarthRadiusKm is the mean earth radius used by the haversine formula.
	EarthRadiusKm = 6371.0

	// DefaultAvgSpeedKmh is the assumed average driving speed.
	DefaultAvgSpeedKmh = 60.0

	// HandlingPolicyDeliveryList is the per-complexity handling time used by
	// the delivery list.
	HandlingPolicyDeliveryList = 20
	// HandlingPolicyRouteManager is the per-complexity handling time used by
	// the route manager screen. Which of the two is authoritative is still
	// open, so both are exposed and DefaultMinutesPerLevel picks the list one.
	HandlingPolicyRouteManager = 30

	DefaultMinutesPerLevel = HandlingPolicyDeliveryList
)

// DistanceKm returns the great-circle distance between a and b in kilometers.
func DistanceKm(a, b model.GeoPoint) float64 {
	if a == b {
		return 0
	}
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	sLat := math.Sin(dLat / 2)
	sLng := math.Sin(dLng / 2)
	h := sLat*sLat + math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*sLng*sLng
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// Estimator holds the two tunables behind the time estimates.
type Estimator struct {
	AvgSpeedKmh     float64
	MinutesPerLevel int
}

// DefaultEstimator uses 60 km/h and 20 minutes per complexity level.
func DefaultEstimator() Estimator {
	return Estimator{AvgSpeedKmh: DefaultAvgSpeedKmh, MinutesPerLevel: DefaultMinutesPerLevel}
}

func (e Estimator) speed() float64 {
	if e.AvgSpeedKmh <= 0 {
		return DefaultAvgSpeedKmh
	}
	return e.AvgSpeedKmh
}

// DriveMinutes converts a distance into whole driving minutes.
func (e Estimator) DriveMinutes(distanceKm float64) int {
	if distanceKm <= 0 || math.IsNaN(distanceKm) {
		return 0
	}
	return int(math.Round(distanceKm / e.speed() * 60))
}

// HandlingMinutes is complexity * MinutesPerLevel. Missing complexity counts as 1.
func (e Estimator) HandlingMinutes(complexity int) int {
	if complexity <= 0 {
		complexity = 1
	}
	per := e.MinutesPerLevel
	if per <= 0 {
		per = DefaultMinutesPerLevel
	}
	return complexity * per
}

// PolicyMinutes maps a handling policy name (delivery-list, route-manager)
// to its minutes per complexity level. Empty selects the default.
func PolicyMinutes(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "delivery-list", "list":
		return HandlingPolicyDeliveryList, nil
	case "route-manager", "manager":
		return HandlingPolicyRouteManager, nil
	default:
		return 0, fmt.Errorf("unknown handling policy %q", name)
	}
}

// DriveMinutes uses the default average speed.
func DriveMinutes(distanceKm float64) int { return DefaultEstimator().DriveMinutes(distanceKm) }

// HandlingMinutes uses the default handling policy.
func HandlingMinutes(complexity int) int { return DefaultEstimator().HandlingMinutes(complexity) }

// LegEstimate is the straight-line estimate for travelling to a stop and handling it.
type LegEstimate struct {
	DistanceKm      float64 `json:"distanceKm"`
	DriveMinutes    int     `json:"driveMinutes"`
	HandlingMinutes int     `json:"handlingMinutes"`
}

// Leg estimates the trip from one order to the next, including handling at the destination.
func (e Estimator) Leg(from, to model.Order) LegEstimate {
	d := DistanceKm(from.Location, to.Location)
	return LegEstimate{
		DistanceKm:      d,
		DriveMinutes:    e.DriveMinutes(d),
		HandlingMinutes: e.HandlingMinutes(to.Product.Complexity),
	}
}

// Fallback builds the geometric RouteData used when routing fails: a straight
// two-point polyline with haversine distance and average-speed duration.
// reason is shown to clients as RouteData.Error.
func (e Estimator) Fallback(from, to model.GeoPoint, reason string) model.RouteData {
	d := DistanceKm(from, to)
	bb := Bounds([]model.GeoPoint{from, to})
	rd := model.RouteData{
		Polyline: model.Polyline{
			Format: model.PolylineLatLng,
			Coords: [][2]float64{{from.Lat, from.Lng}, {to.Lat, to.Lng}},
		},
		DistanceM:    d * 1000,
		DurationS:    float64(e.DriveMinutes(d) * 60),
		BBox:         &bb,
		Status:       model.SegmentFailed,
		CalculatedAt: time.Now().UTC(),
		Source:       "straight-line",
	}
	rd.Error = reason
	return rd
}

// Bounds returns the bounding box of pts. The zero box is returned for no points.
func Bounds(pts []model.GeoPoint) model.BBox {
	if len(pts) == 0 {
		return model.BBox{}
	}
	bb := model.BBox{South: pts[0].Lat, North: pts[0].Lat, West: pts[0].Lng, East: pts[0].Lng}
	for _, p := range pts[1:] {
		bb.South = math.Min(bb.South, p.Lat)
		bb.North = math.Max(bb.North, p.Lat)
		bb.West = math.Min(bb.West, p.Lng)
		bb.East = math.Max(bb.East, p.Lng)
	}
	return bb
}
