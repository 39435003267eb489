package api

import (
    "encoding/json"
    "net/http"
    "strconv"
    "strings"

    "dispatchmap/internal/integrations"
    "dispatchmap/internal/integrations/csvorders"
    "dispatchmap/internal/model"
)

const maxImportBytes = 4 << 20

// OrdersHandler handles GET and POST /v1/orders.
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/orders" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        q := r.URL.Query()
        var pool *bool
        if v := q.Get("pool"); v != "" {
            b, err := strconv.ParseBool(v)
            if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid pool filter", err.Error(), r.URL.Path); return }
            pool = &b
        }
        status := model.OrderStatus(q.Get("status"))
        if status != "" && !status.Valid() {
            writeProblem(w, http.StatusBadRequest, "Invalid status filter", string(status), r.URL.Path)
            return
        }
        orders, err := s.Store.GetOrders(r.Context())
        if err != nil { storeProblem(w, r, "List orders failed", err); return }
        items := make([]model.Order, 0, len(orders))
        for _, o := range orders {
            if pool != nil && o.InPool() != *pool { continue }
            if status != "" && o.Status != status { continue }
            items = append(items, o)
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        var req struct {
            Orders []model.OrderIn `json:"orders"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if len(req.Orders) == 0 { writeProblem(w, http.StatusBadRequest, "No orders", "orders must not be empty", r.URL.Path); return }
        created, err := s.Store.CreateOrders(r.Context(), req.Orders)
        if err != nil { storeProblem(w, r, "Create orders failed", err); return }
        writeJSON(w, http.StatusCreated, map[string]any{"items": created})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OrderByIDHandler handles GET and PATCH /v1/orders/{id}.
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/orders/"), "/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        o, err := s.Store.GetOrder(r.Context(), id)
        if err != nil { storeProblem(w, r, "Order not found", err); return }
        writeJSON(w, http.StatusOK, o)
    case http.MethodPatch:
        var patch model.OrderPatch
        if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        o, err := s.Store.UpdateOrder(r.Context(), id, patch)
        if err != nil { storeProblem(w, r, "Update order failed", err); return }
        if o == nil { writeProblem(w, http.StatusNotFound, "Order not found", id, r.URL.Path); return }
        s.refreshDelivery(r.Context(), o.DeliveryID)
        writeJSON(w, http.StatusOK, o)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OrdersImportHandler handles POST /v1/orders/import with a CSV body. The
// batch is all or nothing and every imported order lands in the pool.
func (s *Server) OrdersImportHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    src := csvorders.Adapter{R: http.MaxBytesReader(w, r.Body, maxImportBytes)}
    created, err := integrations.Import(r.Context(), src, s.Store)
    if err != nil { storeProblem(w, r, "Import failed", err); return }
    writeJSON(w, http.StatusCreated, map[string]any{"source": src.Name(), "items": created})
}
