package segment

import (
	"context"
	"fmt"
	"sync"

	"dispatchmap/internal/mapprovider"
	"dispatchmap/internal/model"
)

// fakeMap records provider calls. When gate is set, CreateRouteSegment
// signals started and blocks until gate is closed.
type fakeMap struct {
	mu        sync.Mutex
	err       error
	gate      chan struct{}
	started   chan string
	creates   int
	draws     int
	updates   int
	removed   []string
	nextRoute int
}

func (f *fakeMap) CreateMarker(context.Context, model.Order) (mapprovider.Marker, error) {
	return mapprovider.Marker{}, nil
}
func (f *fakeMap) UpdateMarker(context.Context, mapprovider.Marker, model.Order) error { return nil }
func (f *fakeMap) RemoveMarker(context.Context, string) error                          { return nil }

func (f *fakeMap) CreateRouteSegment(ctx context.Context, from, to model.Order) (model.RouteData, error) {
	f.mu.Lock()
	f.creates++
	gate, started, err := f.gate, f.started, f.err
	f.mu.Unlock()
	if started != nil {
		started <- from.ID + "-" + to.ID
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return model.RouteData{}, err
	}
	return model.RouteData{
		Polyline:  model.Polyline{Format: model.PolylineLatLng, Coords: [][2]float64{{from.Location.Lat, from.Location.Lng}, {to.Location.Lat, to.Location.Lng}}},
		DistanceM: 1234,
		DurationS: 180,
		Source:    "fake",
	}, nil
}

func (f *fakeMap) DrawRouteSegment(_ context.Context, segmentID string, _ model.RouteData) (mapprovider.RouteHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draws++
	f.nextRoute++
	return mapprovider.RouteHandle{ID: fmt.Sprintf("r%d", f.nextRoute), SegmentID: segmentID}, nil
}

func (f *fakeMap) UpdateRouteSegment(context.Context, mapprovider.RouteHandle, model.RouteData) error {
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()
	return nil
}

func (f *fakeMap) RemoveRouteSegment(_ context.Context, routeID string) error {
	f.mu.Lock()
	f.removed = append(f.removed, routeID)
	f.mu.Unlock()
	return nil
}

func (f *fakeMap) FitBounds(context.Context, []model.Order) error     { return nil }
func (f *fakeMap) SetView(context.Context, model.GeoPoint, int) error { return nil }

func (f *fakeMap) counts() (creates, draws, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.draws, f.updates
}

// highlightMap adds highlight support on top of fakeMap.
type highlightMap struct {
	fakeMap
	hmu sync.Mutex
	on  []string
	off []string
}

func (h *highlightMap) HighlightSegment(_ context.Context, routeID string) error {
	h.hmu.Lock()
	h.on = append(h.on, routeID)
	h.hmu.Unlock()
	return nil
}

func (h *highlightMap) UnhighlightSegment(_ context.Context, routeID string) error {
	h.hmu.Lock()
	h.off = append(h.off, routeID)
	h.hmu.Unlock()
	return nil
}
