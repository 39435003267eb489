package store

import (
    "context"
    "fmt"

    "dispatchmap/internal/model"
)

// demoOrders are spread over central Prague so every map backend has tiles for them.
var demoOrders = []model.OrderIn{
    {Location: model.GeoPoint{Lat: 50.0875, Lng: 14.4213}, Product: model.Product{Name: "Flowers", Complexity: 1}, Priority: model.PriorityHigh, Amount: 39.9, Customer: "Old Town Florist"},
    {Location: model.GeoPoint{Lat: 50.0810, Lng: 14.4280}, Product: model.Product{Name: "Office chairs", Complexity: 3}, Priority: model.PriorityMedium, Amount: 420, Customer: "Wenceslas Offices"},
    {Location: model.GeoPoint{Lat: 50.0755, Lng: 14.4378}, Product: model.Product{Name: "Groceries", Complexity: 2}, Priority: model.PriorityMedium, Amount: 86.5, Customer: "Vinohrady Market"},
    {Location: model.GeoPoint{Lat: 50.1033, Lng: 14.4500}, Product: model.Product{Name: "Books", Complexity: 1}, Priority: model.PriorityLow, Amount: 24, Customer: "Holesovice Library"},
    {Location: model.GeoPoint{Lat: 50.0880, Lng: 14.4040}, Product: model.Product{Name: "Wine", Complexity: 2}, Priority: model.PriorityHigh, Amount: 150, Customer: "Mala Strana Bistro"},
    {Location: model.GeoPoint{Lat: 50.0650, Lng: 14.4190}, Product: model.Product{Name: "Tyres", Complexity: 3}, Priority: model.PriorityLow, Amount: 310, Customer: "Vysehrad Garage"},
}

// SeedDemo creates the demo orders and one planned delivery over the first
// three of them. It is a no-op when the store already holds orders.
func SeedDemo(ctx context.Context, s Store) error {
    existing, err := s.GetOrders(ctx)
    if err != nil { return fmt.Errorf("seed: list orders: %w", err) }
    if len(existing) > 0 { return nil }
    orders, err := s.CreateOrders(ctx, demoOrders)
    if err != nil { return fmt.Errorf("seed: create orders: %w", err) }
    _, err = s.CreateDelivery(ctx, model.DeliveryIn{
        Name:     "Morning run",
        Driver:   "Jana",
        OrderIDs: []string{orders[0].ID, orders[1].ID, orders[2].ID},
    })
    if err != nil { return fmt.Errorf("seed: create delivery: %w", err) }
    return nil
}
