package api

import (
    "encoding/json"
    "net/http"
    "strconv"
    "strings"

    "dispatchmap/internal/model"
    "dispatchmap/internal/opt"
    "dispatchmap/internal/store"
)

type deliveryResponse struct {
    model.Delivery
    Stops []model.Order `json:"stops"`
}

// DeliveriesHandler handles GET and POST /v1/deliveries.
func (s *Server) DeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/deliveries" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        items, err := s.Store.GetDeliveries(r.Context())
        if err != nil { storeProblem(w, r, "List deliveries failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        var in model.DeliveryIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        d, err := s.Store.CreateDelivery(r.Context(), in)
        if err != nil { storeProblem(w, r, "Create delivery failed", err); return }
        writeJSON(w, http.StatusCreated, d)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// DeliveryByIDHandler handles /v1/deliveries/{id} and its stop mutations:
// /orders, /orders/{orderId}, /reorder, /optimize and /waypoints.
func (s *Server) DeliveryByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/deliveries/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
    id := parts[0]
    ctx := r.Context()

    switch {
    case len(parts) == 1:
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        d, stops, err := store.Stops(ctx, s.Store, id)
        if err != nil { storeProblem(w, r, "Delivery not found", err); return }
        writeJSON(w, http.StatusOK, deliveryResponse{Delivery: d, Stops: stops})

    case len(parts) == 2 && parts[1] == "orders":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var req struct {
            OrderID string `json:"orderId"`
            AtIndex *int   `json:"atIndex,omitempty"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), path)
            return
        }
        if req.OrderID == "" { writeProblem(w, http.StatusBadRequest, "Missing orderId", "", path); return }
        d, err := s.Store.AddOrderToDelivery(ctx, id, req.OrderID, req.AtIndex)
        if err != nil { storeProblem(w, r, "Add order failed", err); return }
        s.refreshDelivery(ctx, id)
        writeJSON(w, http.StatusOK, d)

    case len(parts) == 3 && parts[1] == "orders":
        if r.Method != http.MethodDelete { w.WriteHeader(http.StatusMethodNotAllowed); return }
        d, err := s.Store.RemoveOrderFromDelivery(ctx, id, parts[2])
        if err != nil { storeProblem(w, r, "Remove order failed", err); return }
        s.refreshDelivery(ctx, id)
        writeJSON(w, http.StatusOK, d)

    case len(parts) == 2 && parts[1] == "reorder":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var req struct {
            FromIndex *int `json:"fromIndex"`
            ToIndex   *int `json:"toIndex"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), path)
            return
        }
        if req.FromIndex == nil || req.ToIndex == nil {
            writeProblem(w, http.StatusBadRequest, "Missing index", "fromIndex and toIndex are required", path)
            return
        }
        d, err := s.Store.ReorderDeliveryOrders(ctx, id, *req.FromIndex, *req.ToIndex)
        if err != nil { storeProblem(w, r, "Reorder failed", err); return }
        s.refreshDelivery(ctx, id)
        writeJSON(w, http.StatusOK, d)

    case len(parts) == 2 && parts[1] == "optimize":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.optimizeDelivery(w, r, id)

    case len(parts) == 2 && parts[1] == "waypoints":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        wps, err := s.Store.Waypoints(ctx, id)
        if err != nil { storeProblem(w, r, "List waypoints failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": wps})

    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", path)
    }
}

// optimizeDelivery suggests a shorter stop order. With ?apply=true the
// suggestion is written as a series of reorders.
func (s *Server) optimizeDelivery(w http.ResponseWriter, r *http.Request, id string) {
    ctx := r.Context()
    apply, _ := strconv.ParseBool(r.URL.Query().Get("apply"))
    d, stops, err := store.Stops(ctx, s.Store, id)
    if err != nil { storeProblem(w, r, "Delivery not found", err); return }
    sug := opt.Suggest(stops, 50)
    if apply {
        for _, m := range opt.Moves(d.OrderIDs, sug.OrderIDs) {
            if d, err = s.Store.ReorderDeliveryOrders(ctx, id, m[0], m[1]); err != nil {
                storeProblem(w, r, "Apply order failed", err)
                return
            }
        }
        s.refreshDelivery(ctx, id)
    }
    writeJSON(w, http.StatusOK, map[string]any{"suggestion": sug, "applied": apply, "delivery": d})
}
