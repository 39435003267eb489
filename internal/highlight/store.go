// Package highlight holds the small pieces of shared view state: which order
// or segment is hovered and which filter categories are shown. Each store has
// one owner, the route view that created it, and is handed to readers
// explicitly through a Scope.
package highlight

import (
	"sort"
	"sync"

	"dispatchmap/internal/model"
)

// Store is an observable single value. Setting the current value again does
// not notify. Subscribers see changes in the order they were made and must not
// set the same store from the callback.
type Store[T comparable] struct {
	notifyMu sync.Mutex // held across a change and its delivery
	mu       sync.Mutex
	val      T
	set      bool
	subs     map[int]func(T, bool)
	next     int
}

func NewStore[T comparable]() *Store[T] {
	return &Store[T]{subs: map[int]func(T, bool){}}
}

// Get returns the value and whether one is set.
func (s *Store[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.set
}

func (s *Store[T]) Set(v T) {
	s.update(v, true)
}

// Reset clears the value.
func (s *Store[T]) Reset() {
	var zero T
	s.update(zero, false)
}

func (s *Store[T]) update(v T, set bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	if s.set == set && s.val == v {
		s.mu.Unlock()
		return
	}
	s.val, s.set = v, set
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T, bool), len(ids))
	for i, id := range ids {
		fns[i] = s.subs[id]
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v, set)
	}
}

// Subscribe calls fn with every new value; ok is false after Reset.
func (s *Store[T]) Subscribe(fn func(v T, ok bool)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Filter categories beyond the order statuses and priorities.
const (
	CategoryPool     = "pool"
	CategoryAssigned = "assigned"
)

// Categories lists every filter category.
func Categories() []string {
	return []string{
		string(model.OrderPending), string(model.OrderInProgress), string(model.OrderCompleted), string(model.OrderCancelled),
		string(model.PriorityLow), string(model.PriorityMedium), string(model.PriorityHigh),
		CategoryPool, CategoryAssigned,
	}
}

// Filters is the per-category visibility map. Every category starts enabled.
// Like Store, changes reach subscribers in order.
type Filters struct {
	notifyMu sync.Mutex
	mu       sync.Mutex
	enabled  map[string]bool
	subs     map[int]func(map[string]bool)
	next     int
}

func NewFilters() *Filters {
	f := &Filters{enabled: map[string]bool{}, subs: map[int]func(map[string]bool){}}
	for _, c := range Categories() {
		f.enabled[c] = true
	}
	return f
}

// Known reports whether cat is a filter category.
func (f *Filters) Known(cat string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.enabled[cat]
	return ok
}

// Enabled reports whether cat is shown. Unknown categories are shown.
func (f *Filters) Enabled(cat string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	on, ok := f.enabled[cat]
	return !ok || on
}

// Set changes one category. Unknown categories are ignored and report false.
func (f *Filters) Set(cat string, on bool) bool {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	f.mu.Lock()
	cur, ok := f.enabled[cat]
	if !ok {
		f.mu.Unlock()
		return false
	}
	if cur == on {
		f.mu.Unlock()
		return true
	}
	f.enabled[cat] = on
	snap, fns := f.snapshotLocked(), f.subscribersLocked()
	f.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
	return true
}

func (f *Filters) Toggle(cat string) bool {
	f.mu.Lock()
	cur, ok := f.enabled[cat]
	f.mu.Unlock()
	if !ok {
		return false
	}
	return f.Set(cat, !cur)
}

func (f *Filters) Snapshot() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Match reports whether an order passes the filters: its status, its priority
// and its pool/assigned category must all be enabled.
func (f *Filters) Match(o model.Order) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cat := CategoryAssigned
	if o.InPool() {
		cat = CategoryPool
	}
	for _, c := range []string{string(o.Status), string(o.Priority), cat} {
		if on, ok := f.enabled[c]; ok && !on {
			return false
		}
	}
	return true
}

func (f *Filters) Subscribe(fn func(map[string]bool)) (cancel func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *Filters) snapshotLocked() map[string]bool {
	out := make(map[string]bool, len(f.enabled))
	for k, v := range f.enabled {
		out[k] = v
	}
	return out
}

func (f *Filters) subscribersLocked() []func(map[string]bool) {
	ids := make([]int, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(map[string]bool), len(ids))
	for i, id := range ids {
		fns[i] = f.subs[id]
	}
	return fns
}
