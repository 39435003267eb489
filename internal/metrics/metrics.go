package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // SegmentRecalculations counts finished recalculations by router and outcome
    SegmentRecalculations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "segment_recalculations_total", Help: "Route segment recalculations by router and outcome."},
        []string{"router", "outcome"},
    )
    // SegmentRecalcLatency tracks routing latency in seconds
    SegmentRecalcLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "segment_recalculation_seconds", Help: "Route computation latency in seconds.", Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10}},
        []string{"router"},
    )
    // SegmentStaleDrops counts recalculation results dropped as stale
    SegmentStaleDrops = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "segment_stale_results_total", Help: "Recalculation results dropped as stale."},
    )
    // SegmentsActive is the number of segments held by mounted views
    SegmentsActive = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "segments_active", Help: "Route segments held by mounted views."},
    )
    // ViewsMounted is the number of mounted route views
    ViewsMounted = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "route_views_mounted", Help: "Mounted route views."},
    )
    // RoutingCache counts route cache lookups by result (hit, miss, error)
    RoutingCache = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "routing_cache_lookups_total", Help: "Route data cache lookups by result."},
        []string{"result"},
    )
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(SegmentRecalculations)
        Registry.MustRegister(SegmentRecalcLatency)
        Registry.MustRegister(SegmentStaleDrops)
        Registry.MustRegister(SegmentsActive)
        Registry.MustRegister(ViewsMounted)
        Registry.MustRegister(RoutingCache)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
