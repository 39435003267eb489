// Package routeview ties one delivery to one map: it owns the segment
// manager, the highlight and filter state and the canvas of a mounted view.
package routeview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"dispatchmap/internal/events"
	"dispatchmap/internal/geo"
	"dispatchmap/internal/highlight"
	"dispatchmap/internal/mapprovider"
	"dispatchmap/internal/model"
	"dispatchmap/internal/routing"
	"dispatchmap/internal/segment"
	"dispatchmap/internal/store"
)

var ErrClosed = errors.New("route view closed")

// EventClosed is the last event published for a view.
const EventClosed = "view.closed"

// RouterFactory returns the router a view on the given backend should use.
type RouterFactory func(b mapprovider.Backend) (routing.Router, error)

// Deps are the collaborators shared by every view.
type Deps struct {
	Store       store.Store
	Publisher   mapprovider.Publisher
	Routers     RouterFactory
	Estimator   geo.Estimator
	Concurrency int
}

// View is one mounted route view. It is never shared with another view.
type View struct {
	ID         string
	DeliveryID string
	Backend    mapprovider.Backend

	deps    Deps
	canvas  *mapprovider.Canvas
	manager *segment.Manager
	scope   *highlight.Scope

	refreshMu sync.Mutex // serialises Refresh and Close
	mu        sync.Mutex
	delivery  model.Delivery
	stops     []model.Order
	markers   map[string]mapprovider.Marker // order id -> marker
	unsub     []func()
	closed    bool
}

// Mount loads the delivery, draws its stops and segments, fits the map to
// them and starts calculating routes in the background.
func Mount(ctx context.Context, deps Deps, deliveryID string, backend mapprovider.Backend) (*View, error) {
	if deps.Store == nil || deps.Routers == nil {
		return nil, errors.New("routeview: store and router factory are required")
	}
	if _, err := deps.Store.GetDelivery(ctx, deliveryID); err != nil {
		return nil, fmt.Errorf("mount %s: %w", deliveryID, err)
	}
	router, err := deps.Routers(backend)
	if err != nil {
		return nil, fmt.Errorf("mount %s: router: %w", deliveryID, err)
	}
	if deps.Estimator == (geo.Estimator{}) {
		deps.Estimator = geo.DefaultEstimator()
	}

	v := &View{
		ID:         uuid.NewString(),
		DeliveryID: deliveryID,
		Backend:    backend,
		deps:       deps,
		markers:    map[string]mapprovider.Marker{},
	}
	v.canvas = mapprovider.NewCanvas(backend, v.ID, router, deps.Publisher)
	v.manager = segment.NewManager(v.canvas, segment.Options{Estimator: deps.Estimator, Concurrency: deps.Concurrency})
	v.scope = highlight.NewScope(highlight.NewHighlights(), highlight.NewFilters(), v.manager)
	v.wire()

	if err := v.Refresh(ctx); err != nil {
		v.Close()
		return nil, err
	}
	v.mu.Lock()
	stops := append([]model.Order(nil), v.stops...)
	v.mu.Unlock()
	if err := v.canvas.FitBounds(ctx, stops); err != nil {
		log.Printf("op=routeview.fit_bounds view=%s err=%v", v.ID, err)
	}
	return v, nil
}

// wire forwards manager and highlight changes to the view's subscribers.
func (v *View) wire() {
	h := v.scope.MustHighlight()
	v.unsub = append(v.unsub,
		v.manager.Subscribe(func(e segment.SegmentEvent) {
			data := map[string]any{}
			if e.ID != "" {
				data["id"] = e.ID
				data["segment"] = e.Segment
			}
			v.publish(e.Type, data)
		}),
		h.Order.Subscribe(func(id string, ok bool) {
			v.publish("highlight.order", map[string]any{"orderId": id, "active": ok})
		}),
		h.Segment.Subscribe(v.onSegmentHover()),
		v.scope.MustFilters().Subscribe(func(f map[string]bool) {
			v.publish("filters.changed", map[string]any{"filters": f})
		}),
	)
}

// onSegmentHover moves the map highlight from the previously hovered segment to the new one.
func (v *View) onSegmentHover() func(string, bool) {
	var mu sync.Mutex
	prev := ""
	return func(id string, ok bool) {
		mu.Lock()
		old := prev
		prev = ""
		if ok {
			prev = id
		}
		mu.Unlock()
		if old != "" && old != id {
			v.manager.UnhighlightSegment(old)
		}
		if ok {
			v.manager.HighlightSegment(id)
		}
		v.publish("highlight.segment", map[string]any{"segmentId": id, "active": ok})
	}
}

func (v *View) publish(typ string, data map[string]any) {
	if v.deps.Publisher == nil {
		return
	}
	data["viewId"] = v.ID
	v.deps.Publisher.Publish(v.ID, events.Event{Type: typ, Data: data})
}

// Refresh re-reads the delivery and resyncs markers and segments. Segments
// whose endpoints moved go back to idle and are recalculated along with every
// new one.
func (v *View) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	if v.Closed() {
		return ErrClosed
	}

	d, stops, err := store.Stops(ctx, v.deps.Store, v.DeliveryID)
	if err != nil {
		return fmt.Errorf("refresh view %s: %w", v.ID, err)
	}

	v.mu.Lock()
	prev := make(map[string]model.Order, len(v.stops))
	for _, o := range v.stops {
		prev[o.ID] = o
	}
	markers := make(map[string]mapprovider.Marker, len(v.markers))
	for k, m := range v.markers {
		markers[k] = m
	}
	v.mu.Unlock()

	keep := map[string]bool{}
	for _, o := range stops {
		keep[o.ID] = true
		m, ok := markers[o.ID]
		if !ok {
			nm, err := v.canvas.CreateMarker(ctx, o)
			if err != nil {
				return fmt.Errorf("refresh view %s: marker %s: %w", v.ID, o.ID, err)
			}
			markers[o.ID] = nm
			continue
		}
		if old := prev[o.ID]; old != o {
			if err := v.canvas.UpdateMarker(ctx, m, o); err != nil {
				log.Printf("op=routeview.update_marker view=%s order=%s err=%v", v.ID, o.ID, err)
			}
		}
	}
	for id, m := range markers {
		if keep[id] {
			continue
		}
		if err := v.canvas.RemoveMarker(ctx, m.ID); err != nil {
			log.Printf("op=routeview.remove_marker view=%s order=%s err=%v", v.ID, id, err)
		}
		delete(markers, id)
	}

	v.mu.Lock()
	v.delivery = d
	v.stops = stops
	v.markers = markers
	v.mu.Unlock()

	added, removed := v.manager.SyncStops(stops)
	if len(added) > 0 || len(removed) > 0 {
		log.Printf("op=routeview.sync view=%s delivery=%s added=%d removed=%d", v.ID, v.DeliveryID, len(added), len(removed))
	}
	v.manager.RecalculatePendingAsync()
	return nil
}

// HoverOrder sets the hovered order; an empty id clears it.
func (v *View) HoverOrder(orderID string) {
	h := v.scope.MustHighlight()
	if orderID == "" {
		h.Order.Reset()
		return
	}
	h.Order.Set(orderID)
}

// HoverSegment sets the hovered segment, which the map draws highlighted; an
// empty id clears it.
func (v *View) HoverSegment(segmentID string) {
	h := v.scope.MustHighlight()
	if segmentID == "" {
		h.Segment.Reset()
		return
	}
	h.Segment.Set(segmentID)
}

// SetSegmentHighlight turns the highlight of one segment on or off. It
// reports false for unknown segments.
func (v *View) SetSegmentHighlight(segmentID string, on bool) bool {
	if _, ok := v.manager.GetSegment(segmentID); !ok {
		return false
	}
	if on {
		v.HoverSegment(segmentID)
		return true
	}
	if cur, ok := v.scope.MustHighlight().Segment.Get(); ok && cur == segmentID {
		v.HoverSegment("")
	}
	return true
}

// Recalculate recalculates one segment synchronously.
func (v *View) Recalculate(ctx context.Context, segmentID string) (segment.Outcome, error) {
	return v.manager.Recalculate(ctx, segmentID)
}

func (v *View) Scope() *highlight.Scope     { return v.scope }
func (v *View) Manager() *segment.Manager   { return v.manager }
func (v *View) Canvas() *mapprovider.Canvas { return v.canvas }
func (v *View) Filters() *highlight.Filters { return v.scope.MustFilters() }

// Stops returns the current stop order.
func (v *View) Stops() []model.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.Order(nil), v.stops...)
}

func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Close unmounts the view. It waits for a running Refresh; routes still being
// calculated are dropped when they finish.
func (v *View) Close() {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsub := v.unsub
	v.unsub = nil
	v.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
	v.manager.Close()
	v.canvas.Clear()
	v.publish(EventClosed, map[string]any{"deliveryId": v.DeliveryID})
}
