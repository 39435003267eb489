package segment

import (
	"time"

	"dispatchmap/internal/model"
)

// OrderTable is the single source of truth for the orders segments point at.
// Segments hold ids; reads resolve them here.
type OrderTable struct {
	orders map[string]model.Order
}

func NewOrderTable() *OrderTable {
	return &OrderTable{orders: map[string]model.Order{}}
}

func (t *OrderTable) Put(o model.Order) { t.orders[o.ID] = o }

func (t *OrderTable) Get(id string) (model.Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

func (t *OrderTable) Len() int { return len(t.orders) }

func (t *OrderTable) reset() { t.orders = map[string]model.Order{} }

// Store keeps at most one segment per ordered (from, to) pair, in insertion
// order. It is not safe for concurrent use; Manager serialises access.
type Store struct {
	orders *OrderTable
	byID   map[string]*model.RouteSegment
	ids    []string
}

func NewStore() *Store {
	return &Store{orders: NewOrderTable(), byID: map[string]*model.RouteSegment{}}
}

// Orders exposes the order table backing the store.
func (s *Store) Orders() *OrderTable { return s.orders }

// Upsert creates the from->to segment as idle, or refreshes the endpoints and
// UpdatedAt of the existing one. Route data and status are never touched.
func (s *Store) Upsert(from, to model.Order, now time.Time) (model.RouteSegment, bool) {
	s.orders.Put(from)
	s.orders.Put(to)
	id := ID(from.ID, to.ID)
	if seg, ok := s.byID[id]; ok {
		seg.UpdatedAt = now
		return s.snapshot(seg), false
	}
	seg := &model.RouteSegment{
		ID:        id,
		FromID:    from.ID,
		ToID:      to.ID,
		Status:    model.SegmentIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[id] = seg
	s.ids = append(s.ids, id)
	return s.snapshot(seg), true
}

func (s *Store) Get(id string) (model.RouteSegment, bool) {
	seg, ok := s.byID[id]
	if !ok {
		return model.RouteSegment{}, false
	}
	return s.snapshot(seg), true
}

// All returns every segment in insertion order.
func (s *Store) All() []model.RouteSegment {
	out := make([]model.RouteSegment, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.snapshot(s.byID[id]))
	}
	return out
}

func (s *Store) Remove(id string) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Clear() {
	s.byID = map[string]*model.RouteSegment{}
	s.ids = nil
	s.orders.reset()
}

func (s *Store) Len() int { return len(s.ids) }

// Replace makes the store hold exactly the given pairs. Existing pairs keep
// their route data and status. It returns the ids created and the segments
// dropped, the latter as they were before removal.
func (s *Store) Replace(pairs [][2]model.Order, now time.Time) (added []string, removed []model.RouteSegment) {
	keep := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		seg, created := s.Upsert(p[0], p[1], now)
		keep[seg.ID] = true
		if created {
			added = append(added, seg.ID)
		}
	}
	kept := s.ids[:0:0]
	for _, id := range s.ids {
		if keep[id] {
			kept = append(kept, id)
			continue
		}
		removed = append(removed, s.snapshot(s.byID[id]))
		delete(s.byID, id)
	}
	s.ids = kept
	s.prune()
	return added, removed
}

// prune drops orders no segment references any more.
func (s *Store) prune() {
	used := make(map[string]bool, 2*len(s.byID))
	for _, seg := range s.byID {
		used[seg.FromID] = true
		used[seg.ToID] = true
	}
	for id := range s.orders.orders {
		if !used[id] {
			delete(s.orders.orders, id)
		}
	}
}

func (s *Store) entry(id string) (*model.RouteSegment, bool) {
	seg, ok := s.byID[id]
	return seg, ok
}

// snapshot copies seg and resolves its endpoints through the order table.
func (s *Store) snapshot(seg *model.RouteSegment) model.RouteSegment {
	out := *seg
	if o, ok := s.orders.Get(seg.FromID); ok {
		out.From = &o
	}
	if o, ok := s.orders.Get(seg.ToID); ok {
		out.To = &o
	}
	if seg.RouteData != nil {
		rd := *seg.RouteData
		out.RouteData = &rd
	}
	return out
}
