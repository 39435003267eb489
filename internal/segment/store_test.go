package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchmap/internal/model"
)

func order(id string, lat, lng float64) model.Order {
	return model.Order{ID: id, Location: model.GeoPoint{Lat: lat, Lng: lng}, Product: model.Product{Complexity: 1}}
}

var (
	oa = order("a", 50.0755, 14.4378)
	ob = order("b", 50.0875, 14.4213)
	oc = order("c", 50.1033, 14.4500)
	od = order("d", 50.0600, 14.4100)
	t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
)

func TestStoreUpsertOnePerPair(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.Upsert(oa, ob, t0.Add(time.Duration(i)*time.Minute))
	}
	n := 0
	for _, seg := range s.All() {
		if seg.ID == ID(oa.ID, ob.ID) {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestStoreUpsertIdempotent(t *testing.T) {
	s := NewStore()
	first, created := s.Upsert(oa, ob, t0)
	require.True(t, created)
	assert.Equal(t, model.SegmentIdle, first.Status)
	assert.Nil(t, first.RouteData)
	assert.Equal(t, t0, first.CreatedAt)

	later := t0.Add(time.Minute)
	moved := oa
	moved.Location.Lat += 0.01
	second, created := s.Upsert(moved, ob, later)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, t0, second.CreatedAt)
	assert.Equal(t, later, second.UpdatedAt)
	require.NotNil(t, second.From)
	assert.Equal(t, moved.Location, second.From.Location, "endpoints refreshed from the order table")
}

func TestStoreDirectional(t *testing.T) {
	s := NewStore()
	ab, _ := s.Upsert(oa, ob, t0)
	ba, _ := s.Upsert(ob, oa, t0)
	assert.NotEqual(t, ab.ID, ba.ID)
	assert.Equal(t, 2, s.Len())
}

func TestStoreRemoveAndClear(t *testing.T) {
	s := NewStore()
	seg, _ := s.Upsert(oa, ob, t0)
	assert.True(t, s.Remove(seg.ID))
	assert.False(t, s.Remove(seg.ID))
	_, ok := s.Get(seg.ID)
	assert.False(t, ok)
	assert.Empty(t, s.All())

	s.Upsert(oa, ob, t0)
	s.Upsert(ob, oc, t0)
	s.Upsert(oc, od, t0)
	require.Equal(t, 3, s.Len())
	s.Clear()
	assert.Empty(t, s.All())
	assert.Equal(t, 0, s.Orders().Len())
}

func TestStoreAllInsertionOrder(t *testing.T) {
	s := NewStore()
	s.Upsert(oc, od, t0)
	s.Upsert(oa, ob, t0)
	s.Upsert(ob, oc, t0)
	s.Upsert(oc, od, t0)
	var ids []string
	for _, seg := range s.All() {
		ids = append(ids, seg.ID)
	}
	assert.Equal(t, []string{"c-d", "a-b", "b-c"}, ids)
}

func TestStoreReplaceKeepsExisting(t *testing.T) {
	s := NewStore()
	s.Upsert(oa, ob, t0)
	s.Upsert(ob, oc, t0)
	e, _ := s.entry("a-b")
	e.Status = model.SegmentCalculated
	e.RouteData = &model.RouteData{DistanceM: 10}

	added, removed := s.Replace([][2]model.Order{{oa, ob}, {ob, od}}, t0)
	assert.Equal(t, []string{"b-d"}, added)
	require.Len(t, removed, 1)
	assert.Equal(t, "b-c", removed[0].ID)

	ab, ok := s.Get("a-b")
	require.True(t, ok)
	assert.Equal(t, model.SegmentCalculated, ab.Status)
	assert.Equal(t, 10.0, ab.RouteData.DistanceM)

	_, ok = s.Orders().Get("c")
	assert.False(t, ok, "orders no longer referenced are pruned")
}

func TestStoreSnapshotIsolated(t *testing.T) {
	s := NewStore()
	s.Upsert(oa, ob, t0)
	e, _ := s.entry("a-b")
	e.RouteData = &model.RouteData{DistanceM: 1}

	snap, _ := s.Get("a-b")
	snap.RouteData.DistanceM = 99
	snap.From.ID = "zzz"

	again, _ := s.Get("a-b")
	assert.Equal(t, 1.0, again.RouteData.DistanceM)
	assert.Equal(t, "a", again.From.ID)
}
