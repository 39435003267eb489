package api

import (
    "encoding/json"
    "net/http"
    "strings"

    "dispatchmap/internal/mapprovider"
    "dispatchmap/internal/routeview"
    "dispatchmap/internal/segment"
)

// ViewsHandler handles POST /v1/views, which mounts a route view for a delivery.
func (s *Server) ViewsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/views" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req struct {
        DeliveryID string `json:"deliveryId"`
        Provider   string `json:"provider,omitempty"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.DeliveryID == "" { writeProblem(w, http.StatusBadRequest, "Missing deliveryId", "", r.URL.Path); return }
    if req.Provider == "" { req.Provider = s.Config.Map.DefaultProvider }
    backend, err := mapprovider.ParseBackend(req.Provider)
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid provider", err.Error(), r.URL.Path); return }
    v, err := s.Views.Mount(r.Context(), req.DeliveryID, backend)
    if err != nil { storeProblem(w, r, "Mount view failed", err); return }
    writeJSON(w, http.StatusCreated, v.Summary())
}

// ViewByIDHandler handles /v1/views/{id} and everything under it.
func (s *Server) ViewByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/views/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
    id := parts[0]
    v, ok := s.Views.Get(id)
    if !ok { writeProblem(w, http.StatusNotFound, "View not found", id, path); return }

    switch {
    case len(parts) == 1:
        switch r.Method {
        case http.MethodGet:
            writeJSON(w, http.StatusOK, v.Summary())
        case http.MethodDelete:
            s.Views.Unmount(id)
            w.WriteHeader(http.StatusNoContent)
        default:
            w.WriteHeader(http.StatusMethodNotAllowed)
        }
    case parts[1] == "segments":
        s.segments(w, r, v, parts[2:])
    case len(parts) == 2 && parts[1] == "hover":
        s.hover(w, r, v)
    case len(parts) == 2 && parts[1] == "filters":
        s.filters(w, r, v)
    case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.streamEvents(w, r, v)
    case len(parts) == 2 && parts[1] == "ws":
        s.viewSocket(w, r, v)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", path)
    }
}

// segments serves /segments, /segments/{segId}, /segments/{segId}/recalculate
// and /segments/{segId}/highlight.
func (s *Server) segments(w http.ResponseWriter, r *http.Request, v *routeview.View, parts []string) {
    m := v.Manager()
    if len(parts) == 0 {
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": m.GetAllSegments()})
        return
    }
    segID := parts[0]
    switch {
    case len(parts) == 1:
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        seg, ok := m.GetSegment(segID)
        if !ok { writeProblem(w, http.StatusNotFound, "Segment not found", segID, r.URL.Path); return }
        writeJSON(w, http.StatusOK, seg)
    case len(parts) == 2 && parts[1] == "recalculate":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        outcome, err := v.Recalculate(r.Context(), segID)
        if err != nil { storeProblem(w, r, "Recalculate failed", err); return }
        resp := map[string]any{"outcome": outcome}
        if seg, ok := m.GetSegment(segID); ok && outcome != segment.OutcomeStale { resp["segment"] = seg }
        writeJSON(w, http.StatusOK, resp)
    case len(parts) == 2 && parts[1] == "highlight":
        var on bool
        switch r.Method {
        case http.MethodPut:
            on = true
        case http.MethodDelete:
        default:
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }
        if !v.SetSegmentHighlight(segID, on) { writeProblem(w, http.StatusNotFound, "Segment not found", segID, r.URL.Path); return }
        w.WriteHeader(http.StatusNoContent)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

type hoverRequest struct {
    OrderID   *string `json:"orderId,omitempty"`
    SegmentID *string `json:"segmentId,omitempty"`
}

// apply moves the hover highlight; an empty id clears it.
func (h hoverRequest) apply(v *routeview.View) {
    if h.OrderID != nil { v.HoverOrder(*h.OrderID) }
    if h.SegmentID != nil { v.HoverSegment(*h.SegmentID) }
}

func (s *Server) hover(w http.ResponseWriter, r *http.Request, v *routeview.View) {
    if r.Method != http.MethodPut { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req hoverRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.OrderID == nil && req.SegmentID == nil {
        writeProblem(w, http.StatusBadRequest, "Missing target", "orderId or segmentId is required", r.URL.Path)
        return
    }
    req.apply(v)
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) filters(w http.ResponseWriter, r *http.Request, v *routeview.View) {
    f := v.Filters()
    switch r.Method {
    case http.MethodGet:
        writeJSON(w, http.StatusOK, f.Snapshot())
    case http.MethodPut:
        var req map[string]bool
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        for cat := range req {
            if !f.Known(cat) { writeProblem(w, http.StatusBadRequest, "Unknown category", cat, r.URL.Path); return }
        }
        for cat, on := range req { f.Set(cat, on) }
        writeJSON(w, http.StatusOK, f.Snapshot())
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}
