package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "dispatchmap/internal/routeview"
)

const heartbeatInterval = 15 * time.Second

// streamEvents serves GET /v1/views/{id}/events/stream as server-sent events.
// The stream ends when the client goes away or the view is unmounted.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, v *routeview.View) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch := s.Broker.Subscribe(v.ID)
    defer s.Broker.Unsubscribe(v.ID, ch)

    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"viewId\":\"%s\",\"ts\":\"%s\"}\n\n", v.ID, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()

    ticker := time.NewTicker(heartbeatInterval)
    defer ticker.Stop()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt, ok := <-ch:
            if !ok { return }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
            if evt.Type == routeview.EventClosed { return }
        case <-ticker.C:
            heartbeat()
        }
    }
}
