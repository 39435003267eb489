package segment

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dispatchmap/internal/geo"
	"dispatchmap/internal/mapprovider"
	"dispatchmap/internal/metrics"
	"dispatchmap/internal/model"
	"dispatchmap/internal/routing"
)

var (
	ErrSegmentNotFound = errors.New("segment not found")
	ErrClosed          = errors.New("route manager closed")
)

// Outcome is how a Recalculate call ended.
type Outcome string

const (
	OutcomeCalculated Outcome = "calculated"
	OutcomeFailed     Outcome = "failed"
	OutcomeInFlight   Outcome = "in_flight" // another calculation owns the segment
	OutcomeStale      Outcome = "stale"     // superseded or unmounted; result dropped
)

// SegmentEvent is delivered to Subscribe callbacks after each mutation.
type SegmentEvent struct {
	Type    string             `json:"type"`
	ID      string             `json:"id,omitempty"`
	Segment model.RouteSegment `json:"segment"`
}

const (
	EventUpserted = "segment.upserted"
	EventRemoved  = "segment.removed"
	EventStatus   = "segment.status"
	EventCleared  = "segments.cleared"
)

// Options tune a Manager. Zero values are replaced by defaults.
type Options struct {
	Estimator   geo.Estimator
	Concurrency int // parallel recalculations in RecalculatePending
	Now         func() time.Time
}

// Manager owns the segment store of a single route view and drives its
// map provider. All methods are safe for concurrent use. Provider calls are
// made outside the lock.
type Manager struct {
	provider mapprovider.Capability
	router   string
	est      geo.Estimator
	limit    int
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	store       *Store
	gen         map[string]uint64 // survives removal so a re-created segment never matches an old request
	highlighted string
	closed      bool
	subs        map[int]func(SegmentEvent)
	nextSub     int
}

func NewManager(provider mapprovider.Capability, opts Options) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Estimator == (geo.Estimator{}) {
		opts.Estimator = geo.DefaultEstimator()
	}
	router := "unknown"
	if n, ok := provider.(interface{ RouterName() string }); ok {
		router = n.RouterName()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		provider: provider,
		router:   router,
		est:      opts.Estimator,
		limit:    opts.Concurrency,
		now:      opts.Now,
		ctx:      ctx,
		cancel:   cancel,
		store:    NewStore(),
		gen:      map[string]uint64{},
		subs:     map[int]func(SegmentEvent){},
	}
}

// UpsertSegment creates or refreshes the from->to segment.
func (m *Manager) UpsertSegment(from, to model.Order) model.RouteSegment {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return model.RouteSegment{}
	}
	before := m.locationsLocked([]model.Order{from, to})
	now := m.now()
	seg, created := m.store.Upsert(from, to, now)
	reset := m.resetMovedLocked(before, now)
	if !created {
		seg, _ = m.store.Get(seg.ID)
	}
	m.mu.Unlock()
	if created {
		metrics.SegmentsActive.Inc()
	}
	m.notify(SegmentEvent{Type: EventUpserted, ID: seg.ID, Segment: seg})
	for _, r := range reset {
		m.notify(SegmentEvent{Type: EventStatus, ID: r.ID, Segment: r})
	}
	return seg
}

// locationsLocked records where the table currently has each of orders.
func (m *Manager) locationsLocked(orders []model.Order) map[string]model.GeoPoint {
	out := make(map[string]model.GeoPoint, len(orders))
	for _, o := range orders {
		if cur, ok := m.store.Orders().Get(o.ID); ok {
			out[o.ID] = cur.Location
		}
	}
	return out
}

// resetMovedLocked puts segments with an endpoint that moved since before
// back to idle without route data. Their generation is bumped, so a
// calculation still running for the old coordinates is dropped as stale.
func (m *Manager) resetMovedLocked(before map[string]model.GeoPoint, now time.Time) []model.RouteSegment {
	moved := func(id string) bool {
		old, ok := before[id]
		if !ok {
			return false
		}
		cur, _ := m.store.Orders().Get(id)
		return cur.Location != old
	}
	var reset []model.RouteSegment
	for _, id := range m.store.ids {
		seg := m.store.byID[id]
		if !moved(seg.FromID) && !moved(seg.ToID) {
			continue
		}
		m.gen[id]++
		seg.Status = model.SegmentIdle
		seg.RouteData = nil
		seg.UpdatedAt = now
		reset = append(reset, m.store.snapshot(seg))
	}
	return reset
}

func (m *Manager) GetSegment(id string) (model.RouteSegment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(id)
}

func (m *Manager) GetAllSegments() []model.RouteSegment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.All()
}

// Order resolves an order through the segment order table.
func (m *Manager) Order(id string) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Orders().Get(id)
}

// RemoveSegment drops the segment and its drawn route. Unknown ids return false.
func (m *Manager) RemoveSegment(id string) bool {
	m.mu.Lock()
	seg, ok := m.store.Get(id)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.store.Remove(id)
	m.gen[id]++
	if m.highlighted == id {
		m.highlighted = ""
	}
	m.mu.Unlock()

	metrics.SegmentsActive.Dec()
	m.eraseRoute(seg)
	m.notify(SegmentEvent{Type: EventRemoved, ID: id, Segment: seg})
	return true
}

// Clear removes every segment and its drawn route.
func (m *Manager) Clear() {
	m.mu.Lock()
	segs := m.store.All()
	m.store.Clear()
	for _, s := range segs {
		m.gen[s.ID]++
	}
	m.highlighted = ""
	m.mu.Unlock()

	metrics.SegmentsActive.Sub(float64(len(segs)))
	for _, s := range segs {
		m.eraseRoute(s)
	}
	m.notify(SegmentEvent{Type: EventCleared})
}

// SyncStops makes the segments mirror the consecutive pairs of stops. Pairs
// still adjacent keep their route data unless one of their stops moved, in
// which case they go back to idle; the others are removed.
func (m *Manager) SyncStops(stops []model.Order) (added, removed []string) {
	var pairs [][2]model.Order
	for i := 1; i < len(stops); i++ {
		pairs = append(pairs, [2]model.Order{stops[i-1], stops[i]})
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil
	}
	before := m.locationsLocked(stops)
	now := m.now()
	added, gone := m.store.Replace(pairs, now)
	reset := m.resetMovedLocked(before, now)
	for _, s := range gone {
		m.gen[s.ID]++
		removed = append(removed, s.ID)
		if m.highlighted == s.ID {
			m.highlighted = ""
		}
	}
	upserted := make([]model.RouteSegment, 0, len(added))
	for _, id := range added {
		seg, _ := m.store.Get(id)
		upserted = append(upserted, seg)
	}
	m.mu.Unlock()

	metrics.SegmentsActive.Add(float64(len(added) - len(gone)))
	for _, s := range gone {
		m.eraseRoute(s)
		m.notify(SegmentEvent{Type: EventRemoved, ID: s.ID, Segment: s})
	}
	for _, s := range upserted {
		m.notify(SegmentEvent{Type: EventUpserted, ID: s.ID, Segment: s})
	}
	for _, s := range reset {
		m.notify(SegmentEvent{Type: EventStatus, ID: s.ID, Segment: s})
	}
	return added, removed
}

func (m *Manager) eraseRoute(seg model.RouteSegment) {
	if seg.RouteHandle == "" {
		return
	}
	if err := m.provider.RemoveRouteSegment(m.ctx, seg.RouteHandle); err != nil {
		log.Printf("op=segment.remove_route segment=%s route=%s err=%v", seg.ID, seg.RouteHandle, err)
	}
}

// HighlightSegment forwards to the provider when it can highlight and the
// segment has been drawn. The request is remembered and applied once the
// route is drawn.
func (m *Manager) HighlightSegment(id string) {
	m.setHighlight(id, true)
}

func (m *Manager) UnhighlightSegment(id string) {
	m.setHighlight(id, false)
}

func (m *Manager) setHighlight(id string, on bool) {
	m.mu.Lock()
	seg, ok := m.store.entry(id)
	if !ok {
		m.mu.Unlock()
		return
	}
	if on {
		m.highlighted = id
	} else if m.highlighted == id {
		m.highlighted = ""
	}
	handle := seg.RouteHandle
	m.mu.Unlock()
	m.applyHighlight(id, handle, on)
}

func (m *Manager) applyHighlight(id, handle string, on bool) {
	h, ok := m.provider.(mapprovider.Highlighter)
	if !ok || handle == "" {
		return
	}
	var err error
	if on {
		err = h.HighlightSegment(m.ctx, handle)
	} else {
		err = h.UnhighlightSegment(m.ctx, handle)
	}
	if err != nil {
		log.Printf("op=segment.highlight segment=%s on=%t err=%v", id, on, err)
	}
}

// Recalculate computes fresh route data for the segment and draws it.
//
// A segment already calculating is left alone and OutcomeInFlight is
// returned. A provider failure stores the straight-line fallback with status
// failed and returns OutcomeFailed; it is not an error. Results that lose the
// per-segment generation race, or arrive after Close, are dropped as
// OutcomeStale.
func (m *Manager) Recalculate(ctx context.Context, id string) (Outcome, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	seg, ok := m.store.entry(id)
	if !ok {
		m.mu.Unlock()
		return "", ErrSegmentNotFound
	}
	if seg.Status == model.SegmentCalculating {
		m.mu.Unlock()
		return OutcomeInFlight, nil
	}
	m.gen[id]++
	gen := m.gen[id]
	seg.Status = model.SegmentCalculating
	seg.UpdatedAt = m.now()
	from, _ := m.store.Orders().Get(seg.FromID)
	to, _ := m.store.Orders().Get(seg.ToID)
	handle := seg.RouteHandle
	snap := m.store.snapshot(seg)
	m.mu.Unlock()
	m.notify(SegmentEvent{Type: EventStatus, ID: id, Segment: snap})

	start := time.Now()
	rd, err := m.provider.CreateRouteSegment(ctx, from, to)
	metrics.SegmentRecalcLatency.WithLabelValues(m.router).Observe(time.Since(start).Seconds())
	outcome := OutcomeCalculated
	if err != nil {
		log.Printf("op=segment.recalculate segment=%s router=%s err=%v", id, m.router, err)
		rd = m.est.Fallback(from.Location, to.Location, routing.Reason(err))
		outcome = OutcomeFailed
	} else {
		rd.Status = model.SegmentCalculated
		if rd.CalculatedAt.IsZero() {
			rd.CalculatedAt = m.now()
		}
	}

	if !m.current(id, gen) {
		return m.dropStale(id, gen), nil
	}

	// The segment stays calculating while it is drawn so a concurrent request
	// cannot draw a second route for it.
	drawn := false
	if handle == "" {
		h, derr := m.provider.DrawRouteSegment(ctx, id, rd)
		if derr != nil {
			log.Printf("op=segment.draw segment=%s err=%v", id, derr)
		} else {
			handle, drawn = h.ID, true
		}
	} else if uerr := m.provider.UpdateRouteSegment(ctx, mapprovider.RouteHandle{ID: handle, SegmentID: id}, rd); uerr != nil {
		log.Printf("op=segment.redraw segment=%s route=%s err=%v", id, handle, uerr)
	}

	m.mu.Lock()
	seg, ok = m.store.entry(id)
	if m.closed || !ok || m.gen[id] != gen {
		m.mu.Unlock()
		if drawn {
			m.eraseRoute(model.RouteSegment{ID: id, RouteHandle: handle})
		}
		return m.dropStale(id, gen), nil
	}
	seg.RouteData = &rd
	seg.Status = rd.Status
	seg.RouteHandle = handle
	seg.UpdatedAt = m.now()
	highlight := drawn && m.highlighted == id
	snap = m.store.snapshot(seg)
	m.mu.Unlock()

	if highlight {
		m.applyHighlight(id, handle, true)
	}
	metrics.SegmentRecalculations.WithLabelValues(m.router, string(outcome)).Inc()
	m.notify(SegmentEvent{Type: EventStatus, ID: id, Segment: snap})
	return outcome, nil
}

func (m *Manager) current(id string, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.store.entry(id)
	return !m.closed && ok && m.gen[id] == gen
}

func (m *Manager) dropStale(id string, gen uint64) Outcome {
	metrics.SegmentStaleDrops.Inc()
	metrics.SegmentRecalculations.WithLabelValues(m.router, string(OutcomeStale)).Inc()
	log.Printf("op=segment.recalculate segment=%s gen=%d dropped=stale", id, gen)
	return OutcomeStale
}

// RecalculateAsync starts Recalculate on the manager's own context. It
// returns false when the manager is closed or the segment is unknown.
func (m *Manager) RecalculateAsync(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if _, ok := m.store.entry(id); !ok {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.Recalculate(m.ctx, id); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, ErrSegmentNotFound) {
			log.Printf("op=segment.recalculate_async segment=%s err=%v", id, err)
		}
	}()
	return true
}

// RecalculatePending recalculates every idle or failed segment, at most
// Options.Concurrency at a time.
func (m *Manager) RecalculatePending(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	var ids []string
	for _, id := range m.store.ids {
		switch m.store.byID[id].Status {
		case model.SegmentIdle, model.SegmentFailed:
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.limit)
	for _, id := range ids {
		g.Go(func() error {
			_, err := m.Recalculate(gctx, id)
			if errors.Is(err, ErrSegmentNotFound) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// RecalculatePendingAsync runs RecalculatePending in a tracked goroutine.
func (m *Manager) RecalculatePendingAsync() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.RecalculatePending(m.ctx); err != nil && !errors.Is(err, ErrClosed) {
			log.Printf("op=segment.recalculate_pending err=%v", err)
		}
	}()
	return true
}

// Wait blocks until every goroutine started by the manager has returned.
func (m *Manager) Wait() { m.wg.Wait() }

// Close unmounts the manager. The store is emptied, subscribers are
// detached and any completion still in flight is dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	n := m.store.Len()
	for _, id := range m.store.ids {
		m.gen[id]++
	}
	m.store.Clear()
	m.subs = map[int]func(SegmentEvent){}
	m.mu.Unlock()

	metrics.SegmentsActive.Sub(float64(n))
	m.cancel()
}

func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Subscribe registers fn for segment events. Callbacks run on the mutating
// goroutine, outside the manager lock.
func (m *Manager) Subscribe(fn func(SegmentEvent)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(evt SegmentEvent) {
	m.mu.Lock()
	fns := make([]func(SegmentEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}
