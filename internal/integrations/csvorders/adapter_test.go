package csvorders

import (
    "context"
    "errors"
    "strings"
    "testing"

    "dispatchmap/internal/model"
    "dispatchmap/internal/store"
)

func TestFetchOrders(t *testing.T) {
    src := "customer,lat,lng,product,complexity,priority,status\n" +
        "Bistro,50.088,14.404,Wine,2,HIGH,DELIVERED\n" +
        "Library, 50.1033, 14.45,Books,,,\n"
    got, err := Adapter{R: strings.NewReader(src)}.FetchOrders(context.Background())
    if err != nil { t.Fatalf("fetch: %v", err) }
    if len(got) != 2 { t.Fatalf("orders: got %d", len(got)) }
    o := got[0]
    if o.Customer != "Bistro" || o.Product.Complexity != 2 || o.Priority != model.PriorityHigh || o.Status != model.OrderCompleted {
        t.Fatalf("first order: %+v", o)
    }
    if got[1].Location.Lng != 14.45 || got[1].Status != "" { t.Fatalf("second order: %+v", got[1]) }
}

func TestFetchOrdersErrors(t *testing.T) {
    cases := map[string]string{
        "missing lng column": "lat,product\n1,x\n",
        "bad lat":            "lat,lng\nabc,1\n",
        "bad complexity":     "lat,lng,complexity\n1,1,two\n",
    }
    for name, src := range cases {
        _, err := Adapter{R: strings.NewReader(src)}.FetchOrders(context.Background())
        if !errors.Is(err, store.ErrInvalid) { t.Fatalf("%s: got %v", name, err) }
    }
    got, err := Adapter{R: strings.NewReader("")}.FetchOrders(context.Background())
    if err != nil || len(got) != 0 { t.Fatalf("empty input: %v %v", got, err) }
}
