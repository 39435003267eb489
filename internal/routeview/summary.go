package routeview

import (
	"math"
	"strconv"

	"dispatchmap/internal/model"
	"dispatchmap/internal/segment"
)

// Where a leg's drive time came from.
const (
	SourceRoute    = "route"
	SourceEstimate = "estimate"
	SourceNone     = "N/A"
)

type StopSummary struct {
	Seq             int         `json:"seq"`
	Order           model.Order `json:"order"`
	HandlingMinutes int         `json:"handlingMinutes"`
	Visible         bool        `json:"visible"`
}

type LegSummary struct {
	SegmentID       string              `json:"segmentId"`
	FromID          string              `json:"fromId"`
	ToID            string              `json:"toId"`
	Status          model.SegmentStatus `json:"status"`
	DistanceKm      float64             `json:"distanceKm"`
	DriveMinutes    *int                `json:"driveMinutes"`
	DriveLabel      string              `json:"driveLabel"`
	HandlingMinutes int                 `json:"handlingMinutes"`
	Source          string              `json:"source"`
	Error           string              `json:"error,omitempty"`
}

type Summary struct {
	ViewID               string        `json:"viewId"`
	DeliveryID           string        `json:"deliveryId"`
	DeliveryName         string        `json:"deliveryName,omitempty"`
	Provider             string        `json:"provider"`
	Router               string        `json:"router"`
	Stops                []StopSummary `json:"stops"`
	Legs                 []LegSummary  `json:"legs"`
	TotalDistanceKm      float64       `json:"totalDistanceKm"`
	TotalDriveMinutes    int           `json:"totalDriveMinutes"`
	TotalHandlingMinutes int           `json:"totalHandlingMinutes"`
	TotalMinutes         int           `json:"totalMinutes"`
}

// Summary lists the stops with per-leg drive and handling time. A leg uses
// the last calculated route when there is one, the straight-line estimate
// while it is pending or failed, and N/A when no segment exists for it.
func (v *View) Summary() Summary {
	v.mu.Lock()
	stops := append([]model.Order(nil), v.stops...)
	d := v.delivery
	v.mu.Unlock()

	est := v.deps.Estimator
	filters := v.scope.MustFilters()
	s := Summary{
		ViewID:       v.ID,
		DeliveryID:   v.DeliveryID,
		DeliveryName: d.Name,
		Provider:     string(v.Backend),
		Router:       v.canvas.RouterName(),
		Stops:        make([]StopSummary, 0, len(stops)),
		Legs:         []LegSummary{},
	}
	for i, o := range stops {
		h := est.HandlingMinutes(o.Product.Complexity)
		s.Stops = append(s.Stops, StopSummary{Seq: i, Order: o, HandlingMinutes: h, Visible: filters.Match(o)})
		s.TotalHandlingMinutes += h
		if i == 0 {
			continue
		}
		leg := v.leg(stops[i-1], o)
		s.Legs = append(s.Legs, leg)
		s.TotalDistanceKm += leg.DistanceKm
		if leg.DriveMinutes != nil {
			s.TotalDriveMinutes += *leg.DriveMinutes
		}
	}
	s.TotalMinutes = s.TotalDriveMinutes + s.TotalHandlingMinutes
	return s
}

func (v *View) leg(from, to model.Order) LegSummary {
	est := v.deps.Estimator
	id := segment.ID(from.ID, to.ID)
	l := LegSummary{
		SegmentID:       id,
		FromID:          from.ID,
		ToID:            to.ID,
		HandlingMinutes: est.HandlingMinutes(to.Product.Complexity),
		DriveLabel:      SourceNone,
		Source:          SourceNone,
	}
	seg, ok := v.manager.GetSegment(id)
	if !ok {
		return l
	}
	l.Status = seg.Status

	var minutes int
	switch rd := seg.RouteData; {
	case rd != nil && rd.Status == model.SegmentCalculated:
		// also while a calculated segment is being recalculated
		l.DistanceKm = rd.DistanceM / 1000
		minutes = int(math.Round(rd.DurationS / 60))
		l.Source = SourceRoute
	case rd != nil:
		l.DistanceKm = rd.DistanceM / 1000
		minutes = int(math.Round(rd.DurationS / 60))
		l.Source = SourceEstimate
		l.Error = rd.Error
	default:
		e := est.Leg(from, to)
		l.DistanceKm = e.DistanceKm
		minutes = e.DriveMinutes
		l.Source = SourceEstimate
	}
	l.DriveMinutes = &minutes
	l.DriveLabel = formatMinutes(minutes)
	return l
}

func formatMinutes(m int) string {
	if m < 60 {
		return strconv.Itoa(m) + " min"
	}
	return strconv.Itoa(m/60) + " h " + strconv.Itoa(m%60) + " min"
}
