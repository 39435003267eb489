package main

import (
    "bufio"
    "context"
    "errors"
    "log"
    "net"
    "net/http"
    "os"
    "os/signal"
    "strconv"
    "strings"
    "syscall"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"

    "dispatchmap/internal/api"
    "dispatchmap/internal/config"
    "dispatchmap/internal/events"
    "dispatchmap/internal/mapprovider"
    "dispatchmap/internal/metrics"
    "dispatchmap/internal/obs"
    "dispatchmap/internal/routeview"
    "dispatchmap/internal/routing"
    "dispatchmap/internal/store"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    st, closeStore, err := openStore(ctx, cfg)
    if err != nil {
        log.Fatalf("store: %v", err)
    }
    defer closeStore()
    if cfg.SeedDemo {
        if err := store.SeedDemo(ctx, st); err != nil {
            log.Fatalf("seed: %v", err)
        }
    }

    // Broker and route cache share one redis client when REDIS_URL is set
    var broker events.Broker = events.NewMemory()
    var rdb *redis.Client
    if cfg.RedisURL != "" {
        rb, err := events.NewRedis(ctx, cfg.RedisURL)
        if err != nil {
            log.Fatalf("redis: %v", err)
        }
        defer func() { _ = rb.Close() }()
        broker, rdb = rb, rb.Client()
        log.Printf("events via redis, route cache ttl=%s", cfg.Routing.CacheTTL)
    }

    metrics.RegisterDefault()
    srv := api.NewServer(cfg, st, broker, routerFactory(cfg, rdb))
    defer srv.Close()

    mux := http.NewServeMux()

    // Orders and deliveries
    mux.HandleFunc("/v1/orders", srv.OrdersHandler)
    mux.HandleFunc("/v1/orders/", srv.OrderByIDHandler)
    mux.HandleFunc("/v1/orders/import", srv.OrdersImportHandler)
    mux.HandleFunc("/v1/deliveries", srv.DeliveriesHandler)
    mux.HandleFunc("/v1/deliveries/", srv.DeliveryByIDHandler) // includes /orders, /reorder, /optimize, /waypoints

    // Route views
    mux.HandleFunc("/v1/views", srv.ViewsHandler)
    mux.HandleFunc("/v1/views/", srv.ViewByIDHandler) // includes /segments, /hover, /filters, /events/stream, /ws
    mux.HandleFunc("/v1/estimate", srv.EstimateHandler)

    // Health
    mux.HandleFunc("/healthz", srv.HealthHandler)
    mux.HandleFunc("/readyz", srv.ReadyHandler)
    mux.Handle("/metrics", srv.MetricsHandler())
    mux.HandleFunc("/debug/info", srv.DebugJSON)

    addr := ":" + cfg.Port
    hs := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    go func() {
        <-ctx.Done()
        sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        _ = hs.Shutdown(sctx)
    }()

    log.Printf("API listening on %s (map=%s routing=%s)", addr, cfg.Map.DefaultProvider, cfg.Routing.Backend)
    if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Fatalf("server error: %v", err)
    }
}

// openStore uses Postgres when DATABASE_URL is set and the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        return store.NewMemory(), func() {}, nil
    }
    pg, err := store.NewPostgres(cfg.DatabaseURL)
    if err != nil {
        return nil, nil, err
    }
    if err := pg.Migrate(ctx); err != nil {
        _ = pg.Close()
        return nil, nil, err
    }
    return pg, func() { _ = pg.Close() }, nil
}

// routerFactory picks the router for each map backend, cached in redis when available.
func routerFactory(cfg config.Config, rdb *redis.Client) routeview.RouterFactory {
    return func(b mapprovider.Backend) (routing.Router, error) {
        r, err := routing.New(cfg.RouterFor(b))
        if err != nil {
            return nil, err
        }
        if rdb != nil && cfg.Routing.CacheTTL > 0 {
            return routing.NewCached(r, rdb, cfg.Routing.CacheTTL), nil
        }
        return r, nil
    }
}

type statusWriter struct {
    http.ResponseWriter
    status int
}

func (w *statusWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack keep SSE and websocket upgrades working through the wrapper.
func (w *statusWriter) Flush() {
    if f, ok := w.ResponseWriter.(http.Flusher); ok {
        f.Flush()
    }
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := w.ResponseWriter.(http.Hijacker)
    if !ok {
        return nil, nil, errors.New("hijack not supported")
    }
    w.status = http.StatusSwitchingProtocols
    return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        reqID := r.Header.Get("X-Request-Id")
        if reqID == "" {
            reqID = uuid.NewString()
        }
        w.Header().Set("X-Request-Id", reqID)
        r = r.WithContext(obs.WithRequestID(r.Context(), reqID))
        sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(sw, r)
        dur := time.Since(start)
        status := strconv.Itoa(sw.status)
        path := routeLabel(r.URL.Path)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(dur.Seconds())
        log.Printf("req_id=%s %s %s %s %s %v", reqID, r.RemoteAddr, r.Method, r.URL.Path, status, dur)
    })
}

// routeLabel collapses ids so the metrics path label stays bounded:
// /v1/views/abc/segments/x-y/recalculate -> /v1/views/:id/segments/:id/recalculate
func routeLabel(p string) string {
    parts := strings.Split(strings.Trim(p, "/"), "/")
    if len(parts) > 2 && parts[0] == "v1" && parts[2] != "import" {
        parts[2] = ":id"
    }
    if len(parts) > 4 && (parts[3] == "segments" || parts[3] == "orders") {
        parts[4] = ":id"
    }
    return "/" + strings.Join(parts, "/")
}
