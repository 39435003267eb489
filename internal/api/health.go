package api

import (
    "context"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "dispatchmap/internal/buildinfo"
    "dispatchmap/internal/metrics"
)

type pinger interface{ Ping(ctx context.Context) error }

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the Postgres store and the Redis broker when they are in use.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    deps := map[string]any{"store": s.Store, "broker": s.Broker}
    for name, d := range deps {
        p, ok := d.(pinger)
        if !ok { continue }
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        err := p.Ping(ctx)
        cancel()
        if err != nil { writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "views": s.Views.Len()})
}

// MetricsHandler exposes the service registry.
func (s *Server) MetricsHandler() http.Handler {
    return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
}

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    c := s.Config
    writeJSON(w, http.StatusOK, map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "views": s.Views.Len(),
        "config": map[string]any{
            "PORT":               c.Port,
            "MAP_PROVIDER":       c.Map.DefaultProvider,
            "ROUTING_BACKEND":    c.Routing.Backend,
            "ROUTING_RPS":        c.Routing.RPS,
            "ROUTE_CACHE_TTL":    c.Routing.CacheTTL.String(),
            "AVG_SPEED_KMH":      c.Estimate.AvgSpeedKmh,
            "HANDLING_MINUTES":   c.Estimate.HandlingMinutesPerLevel,
            "RECALC_CONCURRENCY": c.Recalc.Concurrency,
            "HAS_DATABASE_URL":   c.DatabaseURL != "",
            "HAS_REDIS_URL":      c.RedisURL != "",
            "HAS_HERE_KEY":       c.Routing.HEREKey != "",
            "HAS_MAPY_KEY":       c.Routing.MapyKey != "",
            "HAS_GOOGLE_KEY":     c.Routing.GoogleKey != "",
        },
    })
}
