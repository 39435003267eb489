package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis implements Broker over Redis Pub/Sub so that several API instances
// can serve the same view.
type Redis struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan Event]*redis.PubSub
}

// NewRedis parses a redis:// URL and verifies the connection.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedisFromClient(rdb), nil
}

func NewRedisFromClient(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, subs: map[chan Event]*redis.PubSub{}}
}

func (b *Redis) Subscribe(viewID string) chan Event {
	ch := make(chan Event, 32)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, chanName(viewID))
	// wait for the subscription confirmation so that a Publish right after
	// Subscribe is not lost
	if _, err := ps.Receive(ctx); err != nil {
		log.Printf("op=events.subscribe view=%s err=%v", viewID, err)
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	msgs := ps.Channel()
	go func() {
		defer close(ch)
		for msg := range msgs {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying PubSub; the forwarding goroutine then closes ch.
func (b *Redis) Unsubscribe(viewID string, ch chan Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *Redis) Publish(viewID string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, chanName(viewID), data).Err(); err != nil {
		log.Printf("op=events.publish view=%s type=%s err=%v", viewID, evt.Type, err)
	}
}

func (b *Redis) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

// Client exposes the connection so the route cache can share it.
func (b *Redis) Client() *redis.Client { return b.rdb }

func (b *Redis) Close() error { return b.rdb.Close() }

func chanName(viewID string) string { return "view:" + viewID }
