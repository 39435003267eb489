// Package csvorders reads orders from a CSV export with a header row:
//
//	lat,lng,product,complexity,priority,amount,customer,status
//
// Only lat and lng are required; column order is free.
package csvorders

import (
    "context"
    "encoding/csv"
    "errors"
    "fmt"
    "io"
    "strconv"
    "strings"

    "dispatchmap/internal/model"
    "dispatchmap/internal/store"
)

// Adapter parses CSV orders from R.
type Adapter struct {
    R io.Reader
}

func (a Adapter) Name() string { return "csv" }

func (a Adapter) FetchOrders(ctx context.Context) ([]model.OrderIn, error) {
    cr := csv.NewReader(a.R)
    cr.TrimLeadingSpace = true
    header, err := cr.Read()
    if errors.Is(err, io.EOF) { return nil, nil }
    if err != nil { return nil, fmt.Errorf("header: %w", err) }
    col := map[string]int{}
    for i, h := range header { col[strings.ToLower(strings.TrimSpace(h))] = i }
    if _, ok := col["lat"]; !ok { return nil, fmt.Errorf("header: missing lat column: %w", store.ErrInvalid) }
    if _, ok := col["lng"]; !ok { return nil, fmt.Errorf("header: missing lng column: %w", store.ErrInvalid) }

    var out []model.OrderIn
    for line := 2; ; line++ {
        if err := ctx.Err(); err != nil { return nil, err }
        rec, err := cr.Read()
        if errors.Is(err, io.EOF) { break }
        if err != nil { return nil, fmt.Errorf("line %d: %w", line, err) }
        get := func(name string) string {
            i, ok := col[name]
            if !ok || i >= len(rec) { return "" }
            return strings.TrimSpace(rec[i])
        }
        o, err := parseRow(get)
        if err != nil { return nil, fmt.Errorf("line %d: %v: %w", line, err, store.ErrInvalid) }
        out = append(out, o)
    }
    return out, nil
}

func parseRow(get func(string) string) (model.OrderIn, error) {
    var o model.OrderIn
    var err error
    if o.Location.Lat, err = strconv.ParseFloat(get("lat"), 64); err != nil { return o, fmt.Errorf("lat: %v", err) }
    if o.Location.Lng, err = strconv.ParseFloat(get("lng"), 64); err != nil { return o, fmt.Errorf("lng: %v", err) }
    o.Product.Name = get("product")
    if v := get("complexity"); v != "" {
        if o.Product.Complexity, err = strconv.Atoi(v); err != nil { return o, fmt.Errorf("complexity: %v", err) }
    }
    if v := get("amount"); v != "" {
        if o.Amount, err = strconv.ParseFloat(v, 64); err != nil { return o, fmt.Errorf("amount: %v", err) }
    }
    o.Priority = model.Priority(strings.ToLower(get("priority")))
    o.Status = mapStatus(get("status"))
    o.Customer = get("customer")
    return o, nil
}

// mapStatus maps carrier status codes onto order statuses. Unknown codes are
// passed through and rejected by order validation.
func mapStatus(code string) model.OrderStatus {
    switch strings.ToUpper(code) {
    case "":
        return ""
    case "NEW", "CREATED", "PENDING":
        return model.OrderPending
    case "OUT_FOR_DELIVERY", "IN_PROGRESS", "IN-PROGRESS":
        return model.OrderInProgress
    case "DELIVERED", "COMPLETED":
        return model.OrderCompleted
    case "CANCELLED", "CANCELED":
        return model.OrderCancelled
    default:
        return model.OrderStatus(strings.ToLower(code))
    }
}
