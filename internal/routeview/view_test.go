package routeview

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchmap/internal/events"
	"dispatchmap/internal/mapprovider"
	"dispatchmap/internal/model"
	"dispatchmap/internal/routing"
	"dispatchmap/internal/segment"
	"dispatchmap/internal/store"
)

type recorder struct {
	mu   sync.Mutex
	evts []events.Event
}

func (r *recorder) Publish(_ string, e events.Event) {
	r.mu.Lock()
	r.evts = append(r.evts, e)
	r.mu.Unlock()
}

func (r *recorder) find(typ string, match func(map[string]any) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.evts {
		if e.Type == typ && (match == nil || match(e.Data)) {
			return true
		}
	}
	return false
}

type failingRouter struct{}

func (failingRouter) Name() string { return "failing" }
func (failingRouter) Route(context.Context, model.GeoPoint, model.GeoPoint) (model.RouteData, error) {
	return model.RouteData{}, &routing.StatusError{Code: 503, Body: "upstream down"}
}

// gatedRouter blocks every Route call until gate is closed.
type gatedRouter struct{ gate chan struct{} }

func (gatedRouter) Name() string { return "gated" }
func (g gatedRouter) Route(ctx context.Context, from, to model.GeoPoint) (model.RouteData, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return model.RouteData{}, ctx.Err()
	}
	return routing.Straight{}.Route(ctx, from, to)
}

// holdRouter blocks Route calls between hold and the close of its channel.
type holdRouter struct {
	mu   sync.Mutex
	gate chan struct{}
}

func (*holdRouter) Name() string { return "hold" }
func (h *holdRouter) Route(ctx context.Context, from, to model.GeoPoint) (model.RouteData, error) {
	h.mu.Lock()
	gate := h.gate
	h.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.RouteData{}, ctx.Err()
		}
	}
	return routing.Straight{}.Route(ctx, from, to)
}

func (h *holdRouter) hold() chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gate = make(chan struct{})
	return h.gate
}

// slowStore parks the next GetDelivery once armed.
type slowStore struct {
	store.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) GetDelivery(ctx context.Context, id string) (model.Delivery, error) {
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.release
	}
	return s.Store.GetDelivery(ctx, id)
}

func fixture(t *testing.T, r routing.Router) (*store.Memory, model.Delivery, Deps, *recorder) {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, store.SeedDemo(context.Background(), m))
	ds, err := m.GetDeliveries(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 1)
	rec := &recorder{}
	deps := Deps{
		Store:     m,
		Publisher: rec,
		Routers:   func(mapprovider.Backend) (routing.Router, error) { return r, nil },
	}
	return m, ds[0], deps, rec
}

func TestMountDrawsStopsAndSegments(t *testing.T) {
	_, d, deps, rec := fixture(t, routing.Straight{})
	v, err := Mount(context.Background(), deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	defer v.Close()
	v.Manager().Wait()

	segs := v.Manager().GetAllSegments()
	require.Len(t, segs, 2)
	assert.Equal(t, segment.ID(d.OrderIDs[0], d.OrderIDs[1]), segs[0].ID)
	for _, s := range segs {
		assert.Equal(t, model.SegmentCalculated, s.Status)
	}
	markers, routes := v.Canvas().Counts()
	assert.Equal(t, 3, markers)
	assert.Equal(t, 2, routes)
	assert.True(t, rec.find("map.fit_bounds", nil))
	assert.True(t, rec.find(segment.EventUpserted, nil))
}

func TestMountUnknownDelivery(t *testing.T) {
	_, _, deps, _ := fixture(t, routing.Straight{})
	_, err := Mount(context.Background(), deps, "missing", mapprovider.HERE)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshFollowsReorder(t *testing.T) {
	ctx := context.Background()
	m, d, deps, _ := fixture(t, routing.Straight{})
	v, err := Mount(ctx, deps, d.ID, mapprovider.Mapy)
	require.NoError(t, err)
	defer v.Close()
	v.Manager().Wait()

	_, err = m.ReorderDeliveryOrders(ctx, d.ID, 0, 2)
	require.NoError(t, err)
	require.NoError(t, v.Refresh(ctx))
	v.Manager().Wait()

	o := d.OrderIDs
	var ids []string
	for _, s := range v.Manager().GetAllSegments() {
		ids = append(ids, s.ID)
		assert.Equal(t, model.SegmentCalculated, s.Status)
	}
	assert.ElementsMatch(t, []string{segment.ID(o[1], o[2]), segment.ID(o[2], o[0])}, ids)
	_, routes := v.Canvas().Counts()
	assert.Equal(t, 2, routes)
}

func TestRefreshRecalculatesMovedStop(t *testing.T) {
	ctx := context.Background()
	m, d, deps, _ := fixture(t, routing.Straight{})
	v, err := Mount(ctx, deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	defer v.Close()
	v.Manager().Wait()

	to := model.GeoPoint{Lat: 50.0500, Lng: 14.4600}
	_, err = m.UpdateOrder(ctx, d.OrderIDs[1], model.OrderPatch{Location: &to})
	require.NoError(t, err)
	require.NoError(t, v.Refresh(ctx))
	v.Manager().Wait()

	seg, ok := v.Manager().GetSegment(segment.ID(d.OrderIDs[0], d.OrderIDs[1]))
	require.True(t, ok)
	require.NotNil(t, seg.RouteData)
	coords := seg.RouteData.Polyline.Coords
	assert.Equal(t, [2]float64{to.Lat, to.Lng}, coords[len(coords)-1])
}

func TestRefreshDuringCalculationUsesMovedStop(t *testing.T) {
	ctx := context.Background()
	r := gatedRouter{gate: make(chan struct{})}
	m, d, deps, _ := fixture(t, r)
	v, err := Mount(ctx, deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	defer v.Close()

	id := segment.ID(d.OrderIDs[0], d.OrderIDs[1])
	require.Eventually(t, func() bool {
		seg, _ := v.Manager().GetSegment(id)
		return seg.Status == model.SegmentCalculating
	}, time.Second, 5*time.Millisecond)

	to := model.GeoPoint{Lat: 50.0500, Lng: 14.4600}
	_, err = m.UpdateOrder(ctx, d.OrderIDs[1], model.OrderPatch{Location: &to})
	require.NoError(t, err)
	require.NoError(t, v.Refresh(ctx))
	close(r.gate)
	v.Manager().Wait()

	seg, ok := v.Manager().GetSegment(id)
	require.True(t, ok)
	assert.Equal(t, model.SegmentCalculated, seg.Status)
	require.NotNil(t, seg.RouteData)
	coords := seg.RouteData.Polyline.Coords
	assert.Equal(t, [2]float64{to.Lat, to.Lng}, coords[len(coords)-1])

	next, ok := v.Manager().GetSegment(segment.ID(d.OrderIDs[1], d.OrderIDs[2]))
	require.True(t, ok)
	require.NotNil(t, next.RouteData)
	assert.Equal(t, [2]float64{to.Lat, to.Lng}, next.RouteData.Polyline.Coords[0])
}

func TestCloseWaitsForRefresh(t *testing.T) {
	ctx := context.Background()
	m, d, deps, rec := fixture(t, routing.Straight{})
	slow := &slowStore{Store: m, entered: make(chan struct{}), release: make(chan struct{})}
	deps.Store = slow
	v, err := Mount(ctx, deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	v.Manager().Wait()

	created, err := m.CreateOrders(ctx, []model.OrderIn{{Location: model.GeoPoint{Lat: 50.09, Lng: 14.43}}})
	require.NoError(t, err)
	_, err = m.AddOrderToDelivery(ctx, d.ID, created[0].ID, nil)
	require.NoError(t, err)

	slow.armed.Store(true)
	refreshed := make(chan error, 1)
	go func() { refreshed <- v.Refresh(ctx) }()
	<-slow.entered
	closed := make(chan struct{})
	go func() {
		v.Close()
		close(closed)
	}()
	time.Sleep(20 * time.Millisecond)
	close(slow.release)
	require.NoError(t, <-refreshed)
	<-closed
	v.Manager().Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	seenClosed := false
	for _, e := range rec.evts {
		if e.Type == EventClosed {
			seenClosed = true
			continue
		}
		if seenClosed {
			assert.NotEqual(t, "map.marker.created", e.Type, "marker drawn after the view closed")
		}
	}
	assert.True(t, seenClosed)
	markers, _ := v.Canvas().Counts()
	assert.Zero(t, markers)
}

func TestRefreshRemovedStop(t *testing.T) {
	ctx := context.Background()
	m, d, deps, _ := fixture(t, routing.Straight{})
	v, err := Mount(ctx, deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	defer v.Close()
	v.Manager().Wait()

	_, err = m.RemoveOrderFromDelivery(ctx, d.ID, d.OrderIDs[1])
	require.NoError(t, err)
	require.NoError(t, v.Refresh(ctx))
	v.Manager().Wait()

	segs := v.Manager().GetAllSegments()
	require.Len(t, segs, 1)
	assert.Equal(t, segment.ID(d.OrderIDs[0], d.OrderIDs[2]), segs[0].ID)
	markers, _ := v.Canvas().Counts()
	assert.Equal(t, 2, markers)
}

func TestSummaryCalculated(t *testing.T) {
	_, d, deps, _ := fixture(t, routing.Straight{})
	v, err := Mount(context.Background(), deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	defer v.Close()
	v.Manager().Wait()

	s := v.Summary()
	require.Len(t, s.Stops, 3)
	require.Len(t, s.Legs, 2)
	assert.Equal(t, "straight", s.Router)
	// seeded complexities 1, 3, 2 at 20 min per level
	assert.Equal(t, 120, s.TotalHandlingMinutes)
	assert.Equal(t, 60, s.Legs[0].HandlingMinutes)
	drive := 0
	for _, l := range s.Legs {
		assert.Equal(t, SourceRoute, l.Source)
		require.NotNil(t, l.DriveMinutes)
		drive += *l.DriveMinutes
	}
	assert.Equal(t, drive, s.TotalDriveMinutes)
	assert.Equal(t, s.TotalDriveMinutes+s.TotalHandlingMinutes, s.TotalMinutes)
	assert.Greater(t, s.TotalDistanceKm, 0.0)
}

func TestSummaryFailedUsesFallback(t *testing.T) {
	_, d, deps, _ := fixture(t, failingRouter{})
	v, err := Mount(context.Background(), deps, d.ID, mapprovider.HERE)
	require.NoError(t, err)
	defer v.Close()
	v.Manager().Wait()

	for _, l := range v.Summary().Legs {
		assert.Equal(t, model.SegmentFailed, l.Status)
		assert.Equal(t, SourceEstimate, l.Source)
		assert.Equal(t, "routing provider returned 503", l.Error)
		require.NotNil(t, l.DriveMinutes)
		assert.NotEqual(t, SourceNone, l.DriveLabel)
	}
}

func TestSummaryWhileCalculating(t *testing.T) {
	r := gatedRouter{gate: make(chan struct{})}
	_, d, deps, _ := fixture(t, r)
	v, err := Mount(context.Background(), deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)

	for _, l := range v.Summary().Legs {
		assert.Equal(t, SourceEstimate, l.Source)
		require.NotNil(t, l.DriveMinutes)
	}
	close(r.gate)
	v.Manager().Wait()
	for _, l := range v.Summary().Legs {
		assert.Equal(t, SourceRoute, l.Source)
	}
	v.Close()
}

func TestSummaryKeepsRouteWhileRecalculating(t *testing.T) {
	r := &holdRouter{}
	_, d, deps, _ := fixture(t, r)
	v, err := Mount(context.Background(), deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	defer v.Close()
	v.Manager().Wait()

	gate := r.hold()
	id := segment.ID(d.OrderIDs[0], d.OrderIDs[1])
	require.True(t, v.Manager().RecalculateAsync(id))
	require.Eventually(t, func() bool {
		seg, _ := v.Manager().GetSegment(id)
		return seg.Status == model.SegmentCalculating
	}, time.Second, 5*time.Millisecond)

	leg := v.Summary().Legs[0]
	assert.Equal(t, model.SegmentCalculating, leg.Status)
	assert.Equal(t, SourceRoute, leg.Source)
	close(gate)
	v.Manager().Wait()
}

func TestHoverSegmentHighlightsRoute(t *testing.T) {
	_, d, deps, rec := fixture(t, routing.Straight{})
	v, err := Mount(context.Background(), deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	defer v.Close()
	v.Manager().Wait()

	id := segment.ID(d.OrderIDs[0], d.OrderIDs[1])
	require.True(t, v.SetSegmentHighlight(id, true))
	assert.True(t, rec.find("map.route.style", func(m map[string]any) bool {
		return m["segmentId"] == id && m["highlighted"] == true
	}))
	assert.True(t, rec.find("highlight.segment", func(m map[string]any) bool { return m["segmentId"] == id }))

	require.True(t, v.SetSegmentHighlight(id, false))
	assert.True(t, rec.find("map.route.style", func(m map[string]any) bool {
		return m["segmentId"] == id && m["highlighted"] == false
	}))
	assert.False(t, v.SetSegmentHighlight("x-y", true))

	v.HoverOrder(d.OrderIDs[2])
	assert.True(t, rec.find("highlight.order", func(m map[string]any) bool { return m["orderId"] == d.OrderIDs[2] }))
	cur, ok := v.Scope().MustHighlight().Order.Get()
	assert.True(t, ok)
	assert.Equal(t, d.OrderIDs[2], cur)
}

func TestCloseUnmounts(t *testing.T) {
	_, d, deps, rec := fixture(t, routing.Straight{})
	v, err := Mount(context.Background(), deps, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	v.Close()
	v.Manager().Wait()
	v.Close()

	assert.True(t, v.Closed())
	assert.ErrorIs(t, v.Refresh(context.Background()), ErrClosed)
	assert.Empty(t, v.Manager().GetAllSegments())
	markers, routes := v.Canvas().Counts()
	assert.Zero(t, markers)
	assert.Zero(t, routes)
	assert.True(t, rec.find("view.closed", nil))
}

func TestRegistryOneManagerPerView(t *testing.T) {
	ctx := context.Background()
	_, d, deps, _ := fixture(t, routing.Straight{})
	r := NewRegistry(deps)

	a, err := r.Mount(ctx, d.ID, mapprovider.Leaflet)
	require.NoError(t, err)
	b, err := r.Mount(ctx, d.ID, mapprovider.Mapy)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotSame(t, a.Manager(), b.Manager())
	assert.Len(t, r.ForDelivery(d.ID), 2)
	require.NoError(t, r.RefreshDelivery(ctx, d.ID))
	require.NoError(t, r.RefreshAll(ctx))

	got, ok := r.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, r.Unmount(a.ID))
	assert.False(t, r.Unmount(a.ID))
	_, ok = r.Get(a.ID)
	assert.False(t, ok)
	assert.True(t, a.Closed())
	assert.False(t, b.Closed())

	_, err = r.Mount(ctx, "missing", mapprovider.Leaflet)
	assert.ErrorIs(t, err, store.ErrNotFound)

	r.Close()
	assert.Zero(t, r.Len())
	a.Manager().Wait()
	b.Manager().Wait()
}
