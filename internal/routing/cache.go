package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dispatchmap/internal/metrics"
	"dispatchmap/internal/model"
)

// Cached stores successful results of next in Redis. Cache errors are logged
// and never fail a route request.
type Cached struct {
	next Router
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCached(next Router, rdb *redis.Client, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl}
}

func (c *Cached) Name() string { return c.next.Name() }

// cacheKey rounds to ~1m so that marker jitter still hits.
func (c *Cached) cacheKey(from, to model.GeoPoint) string {
	return fmt.Sprintf("route:%s:%.5f,%.5f:%.5f,%.5f", c.next.Name(), from.Lat, from.Lng, to.Lat, to.Lng)
}

func (c *Cached) Route(ctx context.Context, from, to model.GeoPoint) (model.RouteData, error) {
	key := c.cacheKey(from, to)
	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rd model.RouteData
		if jerr := json.Unmarshal(b, &rd); jerr == nil {
			metrics.RoutingCache.WithLabelValues("hit").Inc()
			return rd, nil
		}
		metrics.RoutingCache.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.RoutingCache.WithLabelValues("miss").Inc()
	default:
		metrics.RoutingCache.WithLabelValues("error").Inc()
		log.Printf("op=routing.cache.get key=%s err=%v", key, err)
	}

	rd, err := c.next.Route(ctx, from, to)
	if err != nil {
		return rd, err
	}
	if data, jerr := json.Marshal(rd); jerr == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Printf("op=routing.cache.set key=%s err=%v", key, err)
		}
	}
	return rd, nil
}
