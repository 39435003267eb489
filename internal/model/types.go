package model

import "time"

// Core domain types shared by the collaborators, the segment core and the API.

type GeoPoint struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

type OrderStatus string

const (
    OrderPending    OrderStatus = "pending"
    OrderInProgress OrderStatus = "in-progress"
    OrderCompleted  OrderStatus = "completed"
    OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
    switch s {
    case OrderPending, OrderInProgress, OrderCompleted, OrderCancelled:
        return true
    }
    return false
}

type Priority string

const (
    PriorityLow    Priority = "low"
    PriorityMedium Priority = "medium"
    PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
    switch p {
    case PriorityLow, PriorityMedium, PriorityHigh:
        return true
    }
    return false
}

// Product describes what is delivered. Complexity (1..3) drives handling time.
type Product struct {
    Name       string `json:"name,omitempty"`
    Complexity int    `json:"complexity,omitempty"`
}

// Order is owned by the orders collaborator. An empty DeliveryID marks a pool order.
type Order struct {
    ID         string      `json:"id"`
    Location   GeoPoint    `json:"location"`
    Product    Product     `json:"product"`
    DeliveryID string      `json:"deliveryId,omitempty"`
    Status     OrderStatus `json:"status"`
    Priority   Priority    `json:"priority"`
    Amount     float64     `json:"amount"`
    Customer   string      `json:"customer,omitempty"`
    CreatedAt  time.Time   `json:"createdAt"`
    UpdatedAt  time.Time   `json:"updatedAt"`
}

// InPool reports whether the order is not assigned to any delivery.
func (o Order) InPool() bool { return o.DeliveryID == "" }

type OrderIn struct {
    Location GeoPoint    `json:"location"`
    Product  Product     `json:"product"`
    Status   OrderStatus `json:"status,omitempty"`
    Priority Priority    `json:"priority,omitempty"`
    Amount   float64     `json:"amount,omitempty"`
    Customer string      `json:"customer,omitempty"`
}

// OrderPatch carries the partial fields accepted by UpdateOrder.
type OrderPatch struct {
    Location *GeoPoint   `json:"location,omitempty"`
    Product  *Product    `json:"product,omitempty"`
    Status   OrderStatus `json:"status,omitempty"`
    Priority Priority    `json:"priority,omitempty"`
    Amount   *float64    `json:"amount,omitempty"`
    Customer *string     `json:"customer,omitempty"`
}

type DeliveryStatus string

const (
    DeliveryPlanned    DeliveryStatus = "planned"
    DeliveryInProgress DeliveryStatus = "in-progress"
    DeliveryCompleted  DeliveryStatus = "completed"
)

// Delivery is a route: OrderIDs is the ordered stop sequence.
type Delivery struct {
    ID        string         `json:"id"`
    Name      string         `json:"name,omitempty"`
    Driver    string         `json:"driver,omitempty"`
    Status    DeliveryStatus `json:"status"`
    OrderIDs  []string       `json:"orderIds"`
    CreatedAt time.Time      `json:"createdAt"`
    UpdatedAt time.Time      `json:"updatedAt"`
}

type DeliveryIn struct {
    Name     string   `json:"name,omitempty"`
    Driver   string   `json:"driver,omitempty"`
    OrderIDs []string `json:"orderIds,omitempty"`
}

// Waypoint is the persisted link between a delivery and one of its orders.
type Waypoint struct {
    DeliveryID string `json:"deliveryId"`
    OrderID    string `json:"orderId"`
    Seq        int    `json:"seq"`
}

type SegmentStatus string

const (
    SegmentIdle        SegmentStatus = "idle"
    SegmentCalculating SegmentStatus = "calculating"
    SegmentCalculated  SegmentStatus = "calculated"
    SegmentFailed      SegmentStatus = "failed"
)

// PolylineFormat tells the map widget how to read a Polyline.
type PolylineFormat string

const (
    PolylineLatLng   PolylineFormat = "latlng"   // [[lat,lng],...]
    PolylineLngLat   PolylineFormat = "lnglat"   // GeoJSON order
    PolylineGoogle   PolylineFormat = "google"   // encoded polyline algorithm
    PolylineFlexible PolylineFormat = "flexible" // HERE flexible polyline
)

// Polyline is backend specific: either coordinate pairs or an encoded string.
type Polyline struct {
    Format  PolylineFormat `json:"format"`
    Coords  [][2]float64   `json:"coords,omitempty"`
    Encoded string         `json:"encoded,omitempty"`
}

type BBox struct {
    South float64 `json:"south"`
    West  float64 `json:"west"`
    North float64 `json:"north"`
    East  float64 `json:"east"`
}

// RouteData is the result of one recalculation; it replaces any prior value as a whole.
type RouteData struct {
    Polyline     Polyline      `json:"polyline"`
    DistanceM    float64       `json:"distance"`
    DurationS    float64       `json:"duration"`
    BBox         *BBox         `json:"bbox,omitempty"`
    Status       SegmentStatus `json:"status"`
    CalculatedAt time.Time     `json:"calculatedAt"`
    Error        string        `json:"error,omitempty"`
    Source       string        `json:"source,omitempty"`
}

// RouteSegment is a directed edge between two consecutive stops.
// From and To are resolved snapshots of the order table, filled on read.
type RouteSegment struct {
    ID          string        `json:"id"`
    FromID      string        `json:"fromId"`
    ToID        string        `json:"toId"`
    From        *Order        `json:"fromOrder,omitempty"`
    To          *Order        `json:"toOrder,omitempty"`
    RouteData   *RouteData    `json:"routeData,omitempty"`
    Status      SegmentStatus `json:"status"`
    RouteHandle string        `json:"routeHandle,omitempty"`
    CreatedAt   time.Time     `json:"createdAt"`
    UpdatedAt   time.Time     `json:"updatedAt"`
}
