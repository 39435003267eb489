// Package integrations pulls orders from outside systems into the order pool.
package integrations

import (
    "context"
    "fmt"
    "log"

    "dispatchmap/internal/model"
    "dispatchmap/internal/store"
)

// OrderSource is an external system orders are imported from.
type OrderSource interface {
    Name() string
    FetchOrders(ctx context.Context) ([]model.OrderIn, error)
}

// Import fetches every order from src and creates them in st as one batch.
// New orders land in the pool.
func Import(ctx context.Context, src OrderSource, st store.Store) ([]model.Order, error) {
    in, err := src.FetchOrders(ctx)
    if err != nil { return nil, fmt.Errorf("import %s: %w", src.Name(), err) }
    if len(in) == 0 { return []model.Order{}, nil }
    out, err := st.CreateOrders(ctx, in)
    if err != nil { return nil, fmt.Errorf("import %s: %w", src.Name(), err) }
    log.Printf("op=integrations.import source=%s orders=%d", src.Name(), len(out))
    return out, nil
}
