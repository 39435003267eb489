package integrations

import (
    "context"
    "errors"
    "testing"

    "dispatchmap/internal/model"
    "dispatchmap/internal/store"
)

type staticSource struct {
    orders []model.OrderIn
    err    error
}

func (s staticSource) Name() string { return "static" }
func (s staticSource) FetchOrders(context.Context) ([]model.OrderIn, error) { return s.orders, s.err }

func TestImportCreatesPoolOrders(t *testing.T) {
    st := store.NewMemory()
    src := staticSource{orders: []model.OrderIn{
        {Location: model.GeoPoint{Lat: 50.1, Lng: 14.4}},
        {Location: model.GeoPoint{Lat: 50.2, Lng: 14.5}, Product: model.Product{Complexity: 3}},
    }}
    got, err := Import(context.Background(), src, st)
    if err != nil { t.Fatalf("import: %v", err) }
    if len(got) != 2 || !got[0].InPool() { t.Fatalf("imported: %+v", got) }
    all, _ := st.GetOrders(context.Background())
    if len(all) != 2 { t.Fatalf("store holds %d orders", len(all)) }
}

func TestImportIsAllOrNothing(t *testing.T) {
    st := store.NewMemory()
    src := staticSource{orders: []model.OrderIn{
        {Location: model.GeoPoint{Lat: 50.1, Lng: 14.4}},
        {Location: model.GeoPoint{Lat: 99, Lng: 14.5}},
    }}
    if _, err := Import(context.Background(), src, st); !errors.Is(err, store.ErrInvalid) { t.Fatalf("got %v", err) }
    all, _ := st.GetOrders(context.Background())
    if len(all) != 0 { t.Fatalf("partial import: %d orders", len(all)) }

    boom := errors.New("sftp down")
    if _, err := Import(context.Background(), staticSource{err: boom}, st); !errors.Is(err, boom) { t.Fatalf("got %v", err) }
}
