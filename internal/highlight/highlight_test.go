package highlight

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchmap/internal/model"
	"dispatchmap/internal/segment"
)

func TestStoreSetIdempotent(t *testing.T) {
	s := NewStore[string]()
	_, ok := s.Get()
	assert.False(t, ok)

	var calls int
	cancel := s.Subscribe(func(string, bool) { calls++ })
	s.Set("o1")
	s.Set("o1")
	v, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "o1", v)
	assert.Equal(t, 1, calls)

	s.Set("o2")
	s.Reset()
	s.Reset()
	_, ok = s.Get()
	assert.False(t, ok)
	assert.Equal(t, 3, calls)

	cancel()
	s.Set("o3")
	assert.Equal(t, 3, calls)
}

func TestStoreNotifiesInChangeOrder(t *testing.T) {
	s := NewStore[int]()
	var mu sync.Mutex
	last := -1
	s.Subscribe(func(v int, ok bool) {
		cur, _ := s.Get()
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, cur, v, "callback sees the value it was called for")
		last = v
	})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set(i)
		}()
	}
	wg.Wait()

	cur, ok := s.Get()
	require.True(t, ok)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, cur, last)
}

func TestFiltersNotifyInChangeOrder(t *testing.T) {
	f := NewFilters()
	var mu sync.Mutex
	var last map[string]bool
	f.Subscribe(func(m map[string]bool) {
		mu.Lock()
		last = m
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Toggle(CategoryPool)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, f.Snapshot(), last)
}

func TestStoreEmptyValueIsDistinctFromUnset(t *testing.T) {
	s := NewStore[string]()
	var got []bool
	s.Subscribe(func(_ string, ok bool) { got = append(got, ok) })
	s.Set("")
	s.Reset()
	assert.Equal(t, []bool{true, false}, got)
}

func TestFiltersDefaultsAndToggle(t *testing.T) {
	f := NewFilters()
	for _, c := range Categories() {
		assert.True(t, f.Enabled(c), c)
	}
	var snaps []map[string]bool
	f.Subscribe(func(m map[string]bool) { snaps = append(snaps, m) })

	require.True(t, f.Set(CategoryPool, false))
	require.True(t, f.Set(CategoryPool, false))
	assert.Len(t, snaps, 1)
	assert.False(t, snaps[0][CategoryPool])

	require.True(t, f.Toggle(CategoryPool))
	assert.True(t, f.Enabled(CategoryPool))
	assert.False(t, f.Set("bogus", false))
	assert.False(t, f.Toggle("bogus"))
	assert.False(t, f.Known("bogus"))

	snap := f.Snapshot()
	snap[CategoryPool] = false
	assert.True(t, f.Enabled(CategoryPool), "snapshot is a copy")
}

func TestFiltersMatch(t *testing.T) {
	f := NewFilters()
	pool := model.Order{ID: "p", Status: model.OrderPending, Priority: model.PriorityHigh}
	assigned := model.Order{ID: "a", DeliveryID: "d1", Status: model.OrderInProgress, Priority: model.PriorityLow}
	assert.True(t, f.Match(pool))
	assert.True(t, f.Match(assigned))

	f.Set(CategoryPool, false)
	assert.False(t, f.Match(pool))
	assert.True(t, f.Match(assigned))

	f.Set(string(model.PriorityLow), false)
	assert.False(t, f.Match(assigned))
}

func TestScopeMissingProviders(t *testing.T) {
	var empty Scope
	_, err := empty.Highlight()
	var mpe *MissingProviderError
	require.True(t, errors.As(err, &mpe))
	assert.Equal(t, "HighlightProvider", mpe.Provider)

	_, err = empty.Filters()
	require.True(t, errors.As(err, &mpe))
	assert.Equal(t, "FilterProvider", mpe.Provider)

	_, err = empty.Manager()
	require.True(t, errors.As(err, &mpe))
	assert.Equal(t, "RouteManagerProvider", mpe.Provider)

	assert.PanicsWithError(t, "HighlightProvider is not provided in this scope", func() { empty.MustHighlight() })
	assert.Panics(t, func() { empty.MustFilters() })
	assert.Panics(t, func() { empty.MustManager() })

	var nilScope *Scope
	_, err = nilScope.Highlight()
	assert.Error(t, err)
}

func TestScopeProvided(t *testing.T) {
	h, f := NewHighlights(), NewFilters()
	s := NewScope(h, f, segment.NewManager(nil, segment.Options{}))
	assert.Same(t, h, s.MustHighlight())
	assert.Same(t, f, s.MustFilters())
	assert.NotNil(t, s.MustManager())
}
