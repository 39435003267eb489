// Package events fans out map and segment events to the browser widgets
// subscribed to a route view.
package events

import (
	"sync"
)

// Event is one message pushed to a view's subscribers.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Broker delivers events keyed by view id.
type Broker interface {
	Subscribe(viewID string) chan Event
	Unsubscribe(viewID string, ch chan Event)
	Publish(viewID string, evt Event)
}

// Memory is the in-process broker. Slow subscribers drop events instead of
// blocking the publisher.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // viewId -> set of channels
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(viewID string) chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	if b.subs[viewID] == nil {
		b.subs[viewID] = map[chan Event]struct{}{}
	}
	b.subs[viewID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(viewID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[viewID]
	if m == nil {
		return
	}
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, viewID)
	}
	close(ch)
}

func (b *Memory) Publish(viewID string, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[viewID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribers returns the number of live subscriptions for a view.
func (b *Memory) Subscribers(viewID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[viewID])
}
