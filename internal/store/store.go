package store

import (
    "context"
    "errors"
    "fmt"
    "slices"
    "time"

    "dispatchmap/internal/model"
)

// Store is the orders and deliveries collaborator used by the API server and
// the route views. Implementations are safe for concurrent use.
type Store interface {
    // Orders
    GetOrders(ctx context.Context) ([]model.Order, error)
    GetOrder(ctx context.Context, id string) (model.Order, error)
    // UpdateOrder returns nil and no error when the order does not exist.
    UpdateOrder(ctx context.Context, id string, patch model.OrderPatch) (*model.Order, error)
    CreateOrders(ctx context.Context, orders []model.OrderIn) ([]model.Order, error)

    // Deliveries
    GetDeliveries(ctx context.Context) ([]model.Delivery, error)
    GetDelivery(ctx context.Context, id string) (model.Delivery, error)
    CreateDelivery(ctx context.Context, in model.DeliveryIn) (model.Delivery, error)
    AddOrderToDelivery(ctx context.Context, deliveryID, orderID string, atIndex *int) (model.Delivery, error)
    RemoveOrderFromDelivery(ctx context.Context, deliveryID, orderID string) (model.Delivery, error)
    ReorderDeliveryOrders(ctx context.Context, deliveryID string, fromIndex, toIndex int) (model.Delivery, error)

    // Waypoints lists the (delivery, order, seq) links of a delivery in stop order.
    Waypoints(ctx context.Context, deliveryID string) ([]model.Waypoint, error)
}

var (
    ErrNotFound        = errors.New("not found")
    ErrOrderAssigned   = errors.New("order already assigned to a delivery")
    ErrIndexOutOfRange = errors.New("index out of range")
    ErrInvalid         = errors.New("invalid input")
)

// Stops loads a delivery and its orders in stop order.
func Stops(ctx context.Context, s Store, deliveryID string) (model.Delivery, []model.Order, error) {
    d, err := s.GetDelivery(ctx, deliveryID)
    if err != nil { return model.Delivery{}, nil, err }
    orders, err := s.GetOrders(ctx)
    if err != nil { return model.Delivery{}, nil, fmt.Errorf("load orders: %w", err) }
    byID := make(map[string]model.Order, len(orders))
    for _, o := range orders { byID[o.ID] = o }
    stops := make([]model.Order, 0, len(d.OrderIDs))
    for _, id := range d.OrderIDs {
        o, ok := byID[id]
        if !ok { return model.Delivery{}, nil, fmt.Errorf("delivery %s stop %s: %w", d.ID, id, ErrNotFound) }
        stops = append(stops, o)
    }
    return d, stops, nil
}

// newOrder validates in and fills the defaults.
func newOrder(id string, in model.OrderIn, now time.Time) (model.Order, error) {
    if err := validLocation(in.Location); err != nil { return model.Order{}, err }
    o := model.Order{
        ID: id, Location: in.Location, Product: in.Product,
        Status: in.Status, Priority: in.Priority, Amount: in.Amount, Customer: in.Customer,
        CreatedAt: now, UpdatedAt: now,
    }
    if o.Status == "" { o.Status = model.OrderPending }
    if o.Priority == "" { o.Priority = model.PriorityMedium }
    if o.Product.Complexity == 0 { o.Product.Complexity = 1 }
    if !o.Status.Valid() { return model.Order{}, fmt.Errorf("status %q: %w", o.Status, ErrInvalid) }
    if !o.Priority.Valid() { return model.Order{}, fmt.Errorf("priority %q: %w", o.Priority, ErrInvalid) }
    if o.Product.Complexity < 1 || o.Product.Complexity > 3 {
        return model.Order{}, fmt.Errorf("complexity %d: %w", o.Product.Complexity, ErrInvalid)
    }
    return o, nil
}

func validLocation(p model.GeoPoint) error {
    if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
        return fmt.Errorf("location %v,%v: %w", p.Lat, p.Lng, ErrInvalid)
    }
    return nil
}

// applyPatch updates o in place. o is left untouched on error.
func applyPatch(o *model.Order, p model.OrderPatch, now time.Time) error {
    next := *o
    if p.Location != nil {
        if err := validLocation(*p.Location); err != nil { return err }
        next.Location = *p.Location
    }
    if p.Product != nil {
        if p.Product.Complexity < 1 || p.Product.Complexity > 3 {
            return fmt.Errorf("complexity %d: %w", p.Product.Complexity, ErrInvalid)
        }
        next.Product = *p.Product
    }
    if p.Status != "" {
        if !p.Status.Valid() { return fmt.Errorf("status %q: %w", p.Status, ErrInvalid) }
        next.Status = p.Status
    }
    if p.Priority != "" {
        if !p.Priority.Valid() { return fmt.Errorf("priority %q: %w", p.Priority, ErrInvalid) }
        next.Priority = p.Priority
    }
    if p.Amount != nil { next.Amount = *p.Amount }
    if p.Customer != nil { next.Customer = *p.Customer }
    next.UpdatedAt = now
    *o = next
    return nil
}

// insertAt returns ids with id inserted at *at, or appended when at is nil.
func insertAt(ids []string, id string, at *int) ([]string, error) {
    if at == nil { return append(slices.Clone(ids), id), nil }
    if *at < 0 || *at > len(ids) {
        return nil, fmt.Errorf("insert at %d of %d: %w", *at, len(ids), ErrIndexOutOfRange)
    }
    return slices.Insert(slices.Clone(ids), *at, id), nil
}

// moveIndex moves the element at from so that it ends up at to.
func moveIndex(ids []string, from, to int) ([]string, error) {
    if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
        return nil, fmt.Errorf("move %d to %d of %d: %w", from, to, len(ids), ErrIndexOutOfRange)
    }
    out := slices.Clone(ids)
    id := out[from]
    out = slices.Delete(out, from, from+1)
    return slices.Insert(out, to, id), nil
}
