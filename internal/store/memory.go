package store

import (
    "context"
    "fmt"
    "slices"
    "sync"
    "time"

    "github.com/google/uuid"
    "dispatchmap/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu          sync.Mutex
    orders      map[string]model.Order    // id -> order
    orderIDs    []string                  // creation order
    deliveries  map[string]model.Delivery // id -> delivery
    deliveryIDs []string                  // creation order
    now         func() time.Time
}

func NewMemory() *Memory {
    return &Memory{
        orders: map[string]model.Order{},
        deliveries: map[string]model.Delivery{},
        now: func() time.Time { return time.Now().UTC() },
    }
}

func (m *Memory) GetOrders(ctx context.Context) ([]model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Order, 0, len(m.orderIDs))
    for _, id := range m.orderIDs { out = append(out, m.orders[id]) }
    return out, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok { return model.Order{}, ErrNotFound }
    return o, nil
}

func (m *Memory) UpdateOrder(ctx context.Context, id string, patch model.OrderPatch) (*model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok { return nil, nil }
    if err := applyPatch(&o, patch, m.now()); err != nil { return nil, err }
    m.orders[id] = o
    return &o, nil
}

// CreateOrders is all or nothing: one invalid order rejects the batch.
func (m *Memory) CreateOrders(ctx context.Context, orders []model.OrderIn) ([]model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := m.now()
    out := make([]model.Order, 0, len(orders))
    for i, in := range orders {
        o, err := newOrder(uuid.New().String(), in, now)
        if err != nil { return nil, fmt.Errorf("order %d: %w", i, err) }
        out = append(out, o)
    }
    for _, o := range out {
        m.orders[o.ID] = o
        m.orderIDs = append(m.orderIDs, o.ID)
    }
    return out, nil
}

func (m *Memory) GetDeliveries(ctx context.Context) ([]model.Delivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Delivery, 0, len(m.deliveryIDs))
    for _, id := range m.deliveryIDs { out = append(out, cloneDelivery(m.deliveries[id])) }
    return out, nil
}

func (m *Memory) GetDelivery(ctx context.Context, id string) (model.Delivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.deliveries[id]
    if !ok { return model.Delivery{}, ErrNotFound }
    return cloneDelivery(d), nil
}

func (m *Memory) CreateDelivery(ctx context.Context, in model.DeliveryIn) (model.Delivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    seen := map[string]bool{}
    for _, oid := range in.OrderIDs {
        o, ok := m.orders[oid]
        if !ok { return model.Delivery{}, fmt.Errorf("order %s: %w", oid, ErrNotFound) }
        if !o.InPool() || seen[oid] { return model.Delivery{}, fmt.Errorf("order %s: %w", oid, ErrOrderAssigned) }
        seen[oid] = true
    }
    now := m.now()
    d := model.Delivery{
        ID: uuid.New().String(), Name: in.Name, Driver: in.Driver,
        Status: model.DeliveryPlanned, OrderIDs: slices.Clone(in.OrderIDs),
        CreatedAt: now, UpdatedAt: now,
    }
    if d.OrderIDs == nil { d.OrderIDs = []string{} }
    for _, oid := range d.OrderIDs { m.assign(oid, d.ID, now) }
    m.deliveries[d.ID] = d
    m.deliveryIDs = append(m.deliveryIDs, d.ID)
    return cloneDelivery(d), nil
}

func (m *Memory) AddOrderToDelivery(ctx context.Context, deliveryID, orderID string, atIndex *int) (model.Delivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.deliveries[deliveryID]
    if !ok { return model.Delivery{}, fmt.Errorf("delivery %s: %w", deliveryID, ErrNotFound) }
    o, ok := m.orders[orderID]
    if !ok { return model.Delivery{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound) }
    if !o.InPool() { return model.Delivery{}, fmt.Errorf("order %s in %s: %w", orderID, o.DeliveryID, ErrOrderAssigned) }
    ids, err := insertAt(d.OrderIDs, orderID, atIndex)
    if err != nil { return model.Delivery{}, err }
    now := m.now()
    d.OrderIDs = ids
    d.UpdatedAt = now
    m.deliveries[deliveryID] = d
    m.assign(orderID, deliveryID, now)
    return cloneDelivery(d), nil
}

func (m *Memory) RemoveOrderFromDelivery(ctx context.Context, deliveryID, orderID string) (model.Delivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.deliveries[deliveryID]
    if !ok { return model.Delivery{}, fmt.Errorf("delivery %s: %w", deliveryID, ErrNotFound) }
    i := slices.Index(d.OrderIDs, orderID)
    if i < 0 { return model.Delivery{}, fmt.Errorf("order %s in delivery %s: %w", orderID, deliveryID, ErrNotFound) }
    now := m.now()
    d.OrderIDs = slices.Delete(slices.Clone(d.OrderIDs), i, i+1)
    d.UpdatedAt = now
    m.deliveries[deliveryID] = d
    m.assign(orderID, "", now)
    return cloneDelivery(d), nil
}

func (m *Memory) ReorderDeliveryOrders(ctx context.Context, deliveryID string, fromIndex, toIndex int) (model.Delivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.deliveries[deliveryID]
    if !ok { return model.Delivery{}, fmt.Errorf("delivery %s: %w", deliveryID, ErrNotFound) }
    ids, err := moveIndex(d.OrderIDs, fromIndex, toIndex)
    if err != nil { return model.Delivery{}, err }
    d.OrderIDs = ids
    d.UpdatedAt = m.now()
    m.deliveries[deliveryID] = d
    return cloneDelivery(d), nil
}

func (m *Memory) Waypoints(ctx context.Context, deliveryID string) ([]model.Waypoint, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.deliveries[deliveryID]
    if !ok { return nil, ErrNotFound }
    out := make([]model.Waypoint, len(d.OrderIDs))
    for i, oid := range d.OrderIDs { out[i] = model.Waypoint{DeliveryID: deliveryID, OrderID: oid, Seq: i} }
    return out, nil
}

// assign sets the order's delivery; caller holds mu.
func (m *Memory) assign(orderID, deliveryID string, now time.Time) {
    o := m.orders[orderID]
    o.DeliveryID = deliveryID
    o.UpdatedAt = now
    m.orders[orderID] = o
}

func cloneDelivery(d model.Delivery) model.Delivery {
    d.OrderIDs = slices.Clone(d.OrderIDs)
    if d.OrderIDs == nil { d.OrderIDs = []string{} }
    return d
}
