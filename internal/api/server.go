// Package api implements the HTTP, SSE and WebSocket surface of the dispatch map service.
package api

import (
    "context"
    "log"

    "dispatchmap/internal/config"
    "dispatchmap/internal/events"
    "dispatchmap/internal/geo"
    "dispatchmap/internal/routeview"
    "dispatchmap/internal/store"
)

type Server struct {
    Store     store.Store
    Views     *routeview.Registry
    Broker    events.Broker
    Estimator geo.Estimator
    Config    config.Config
}

// NewServer wires the view registry over the given store, broker and routers.
func NewServer(cfg config.Config, st store.Store, broker events.Broker, routers routeview.RouterFactory) *Server {
    est := cfg.Estimator()
    views := routeview.NewRegistry(routeview.Deps{
        Store:       st,
        Publisher:   broker,
        Routers:     routers,
        Estimator:   est,
        Concurrency: cfg.Recalc.Concurrency,
    })
    return &Server{Store: st, Views: views, Broker: broker, Estimator: est, Config: cfg}
}

// Close unmounts every view.
func (s *Server) Close() { s.Views.Close() }

// refreshDelivery pushes a collaborator change into the views showing the delivery.
func (s *Server) refreshDelivery(ctx context.Context, deliveryID string) {
    if deliveryID == "" { return }
    if err := s.Views.RefreshDelivery(ctx, deliveryID); err != nil {
        log.Printf("op=api.refresh delivery=%s err=%v", deliveryID, err)
    }
}
