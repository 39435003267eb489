package mapprovider

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"dispatchmap/internal/events"
	"dispatchmap/internal/geo"
	"dispatchmap/internal/model"
	"dispatchmap/internal/routing"
)

// Publisher receives every draw operation. events.Broker satisfies it.
type Publisher interface {
	Publish(viewID string, evt events.Event)
}

// Canvas is the Capability for one mounted view. It keeps a registry of the
// markers and routes it has drawn and emits map.* events that the browser
// widget replays against Leaflet, HERE or Mapy.
type Canvas struct {
	backend Backend
	viewID  string
	router  routing.Router
	pub     Publisher

	mu          sync.Mutex
	markers     map[string]Marker
	routes      map[string]RouteHandle
	highlighted map[string]bool
	failed      map[string]bool
}

func NewCanvas(backend Backend, viewID string, router routing.Router, pub Publisher) *Canvas {
	return &Canvas{
		backend:     backend,
		viewID:      viewID,
		router:      router,
		pub:         pub,
		markers:     map[string]Marker{},
		routes:      map[string]RouteHandle{},
		highlighted: map[string]bool{},
		failed:      map[string]bool{},
	}
}

func (c *Canvas) Backend() Backend { return c.backend }

// RouterName is the routing backend behind CreateRouteSegment.
func (c *Canvas) RouterName() string { return c.router.Name() }

func (c *Canvas) emit(typ string, data map[string]any) {
	if c.pub == nil {
		return
	}
	data["provider"] = string(c.backend)
	c.pub.Publish(c.viewID, events.Event{Type: typ, Data: data})
}

func (c *Canvas) CreateMarker(ctx context.Context, order model.Order) (Marker, error) {
	if err := ctx.Err(); err != nil {
		return Marker{}, err
	}
	m := Marker{ID: "mk_" + uuid.NewString(), OrderID: order.ID, Position: order.Location}
	c.mu.Lock()
	c.markers[m.ID] = m
	c.mu.Unlock()
	c.emit("map.marker.created", map[string]any{"marker": m, "order": order})
	return m, nil
}

func (c *Canvas) UpdateMarker(ctx context.Context, marker Marker, order model.Order) error {
	c.mu.Lock()
	if _, ok := c.markers[marker.ID]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("marker %s: %w", marker.ID, ErrUnknownHandle)
	}
	marker.OrderID = order.ID
	marker.Position = order.Location
	c.markers[marker.ID] = marker
	c.mu.Unlock()
	c.emit("map.marker.updated", map[string]any{"marker": marker, "order": order})
	return nil
}

func (c *Canvas) RemoveMarker(ctx context.Context, markerID string) error {
	c.mu.Lock()
	_, ok := c.markers[markerID]
	delete(c.markers, markerID)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("marker %s: %w", markerID, ErrUnknownHandle)
	}
	c.emit("map.marker.removed", map[string]any{"markerId": markerID})
	return nil
}

// CreateRouteSegment asks the router for geometry. It draws nothing.
func (c *Canvas) CreateRouteSegment(ctx context.Context, from, to model.Order) (model.RouteData, error) {
	return c.router.Route(ctx, from.Location, to.Location)
}

func (c *Canvas) DrawRouteSegment(ctx context.Context, segmentID string, data model.RouteData) (RouteHandle, error) {
	if err := ctx.Err(); err != nil {
		return RouteHandle{}, err
	}
	h := RouteHandle{ID: "rt_" + uuid.NewString(), SegmentID: segmentID}
	failed := data.Status == model.SegmentFailed
	c.mu.Lock()
	c.routes[h.ID] = h
	c.failed[h.ID] = failed
	c.mu.Unlock()
	c.emit("map.route.drawn", c.routePayload(h, data, false, failed))
	return h, nil
}

func (c *Canvas) UpdateRouteSegment(ctx context.Context, route RouteHandle, data model.RouteData) error {
	failed := data.Status == model.SegmentFailed
	c.mu.Lock()
	if _, ok := c.routes[route.ID]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("route %s: %w", route.ID, ErrUnknownHandle)
	}
	c.failed[route.ID] = failed
	hl := c.highlighted[route.ID]
	c.mu.Unlock()
	c.emit("map.route.updated", c.routePayload(route, data, hl, failed))
	return nil
}

func (c *Canvas) RemoveRouteSegment(ctx context.Context, routeID string) error {
	c.mu.Lock()
	_, ok := c.routes[routeID]
	delete(c.routes, routeID)
	delete(c.highlighted, routeID)
	delete(c.failed, routeID)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("route %s: %w", routeID, ErrUnknownHandle)
	}
	c.emit("map.route.removed", map[string]any{"routeId": routeID})
	return nil
}

func (c *Canvas) routePayload(h RouteHandle, data model.RouteData, highlighted, failed bool) map[string]any {
	return map[string]any{
		"routeId":   h.ID,
		"segmentId": h.SegmentID,
		"polyline":  c.backend.polyline(data.Polyline),
		"distance":  data.DistanceM,
		"duration":  data.DurationS,
		"bbox":      data.BBox,
		"status":    data.Status,
		"style":     c.backend.routeStyle(highlighted, failed),
	}
}

func (c *Canvas) FitBounds(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	pts := make([]model.GeoPoint, len(orders))
	for i, o := range orders {
		pts[i] = o.Location
	}
	c.emit("map.fit_bounds", map[string]any{"bbox": geo.Bounds(pts)})
	return nil
}

func (c *Canvas) SetView(ctx context.Context, location model.GeoPoint, zoom int) error {
	if zoom < 0 {
		return fmt.Errorf("invalid zoom %d", zoom)
	}
	c.emit("map.view", map[string]any{"center": location, "zoom": zoom})
	return nil
}

func (c *Canvas) HighlightSegment(ctx context.Context, routeID string) error {
	return c.setHighlight(routeID, true)
}

func (c *Canvas) UnhighlightSegment(ctx context.Context, routeID string) error {
	return c.setHighlight(routeID, false)
}

func (c *Canvas) setHighlight(routeID string, on bool) error {
	c.mu.Lock()
	h, ok := c.routes[routeID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("route %s: %w", routeID, ErrUnknownHandle)
	}
	if c.highlighted[routeID] == on {
		c.mu.Unlock()
		return nil
	}
	c.highlighted[routeID] = on
	failed := c.failed[routeID]
	c.mu.Unlock()
	c.emit("map.route.style", map[string]any{
		"routeId":     routeID,
		"segmentId":   h.SegmentID,
		"highlighted": on,
		"style":       c.backend.routeStyle(on, failed),
	})
	return nil
}

// Counts reports how many markers and routes are currently drawn.
func (c *Canvas) Counts() (markers, routes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.markers), len(c.routes)
}

// Clear removes every drawn marker and route.
func (c *Canvas) Clear() {
	c.mu.Lock()
	c.markers = map[string]Marker{}
	c.routes = map[string]RouteHandle{}
	c.highlighted = map[string]bool{}
	c.failed = map[string]bool{}
	c.mu.Unlock()
	c.emit("map.cleared", map[string]any{})
}

var (
	_ Capability  = (*Canvas)(nil)
	_ Highlighter = (*Canvas)(nil)
)
