// Package mapprovider is the boundary between the segment core and a concrete
// map widget. The core drives Capability; Canvas is the one implementation,
// specialised per Backend.
package mapprovider

import (
	"context"
	"errors"

	"dispatchmap/internal/model"
)

var ErrUnknownHandle = errors.New("unknown map handle")

// Marker is a rendered order pin.
type Marker struct {
	ID       string         `json:"id"`
	OrderID  string         `json:"orderId"`
	Position model.GeoPoint `json:"position"`
}

// RouteHandle is a rendered polyline owned by the adapter.
type RouteHandle struct {
	ID        string `json:"id"`
	SegmentID string `json:"segmentId"`
}

// Capability is what a map backend must offer to the route manager.
type Capability interface {
	CreateMarker(ctx context.Context, order model.Order) (Marker, error)
	UpdateMarker(ctx context.Context, marker Marker, order model.Order) error
	RemoveMarker(ctx context.Context, markerID string) error

	// CreateRouteSegment computes geometry, distance and duration between two
	// orders. It may block on a remote routing service.
	CreateRouteSegment(ctx context.Context, from, to model.Order) (model.RouteData, error)
	DrawRouteSegment(ctx context.Context, segmentID string, data model.RouteData) (RouteHandle, error)
	UpdateRouteSegment(ctx context.Context, route RouteHandle, data model.RouteData) error
	RemoveRouteSegment(ctx context.Context, routeID string) error

	FitBounds(ctx context.Context, orders []model.Order) error
	SetView(ctx context.Context, location model.GeoPoint, zoom int) error
}

// Highlighter is optional; backends without highlight support simply do not
// implement it.
type Highlighter interface {
	HighlightSegment(ctx context.Context, routeID string) error
	UnhighlightSegment(ctx context.Context, routeID string) error
}
