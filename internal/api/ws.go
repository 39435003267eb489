package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dispatchmap/internal/routeview"
)

// View socket protocol. The server pushes every view event as an "event"
// message; the client drives the same hover, highlight and filter state the
// REST endpoints do.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsReadTimeout = 60 * time.Second
	wsPingEvery   = 20 * time.Second
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type highlightPayload struct {
	SegmentID string `json:"segmentId"`
	On        bool   `json:"on"`
}

type filterPayload struct {
	Category string `json:"category"`
	Enabled  *bool  `json:"enabled,omitempty"` // nil toggles
}

type segmentPayload struct {
	SegmentID string `json:"segmentId"`
}

func errPayload(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"message": msg})
	return b
}

// viewSocket handles /v1/views/{id}/ws.
func (s *Server) viewSocket(w http.ResponseWriter, r *http.Request, v *routeview.View) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(m wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(m)
	}

	ch := s.Broker.Subscribe(v.ID)
	defer s.Broker.Unsubscribe(v.ID, ch)
	done := make(chan struct{})
	defer close(done)

	// Fanout
	go func() {
		for evt := range ch {
			payload, _ := json.Marshal(evt)
			if err := write(wsMessage{Type: "event", Payload: payload}); err != nil {
				return
			}
			if evt.Type == routeview.EventClosed {
				_ = write(wsMessage{Type: "complete"})
				_ = conn.Close()
				return
			}
		}
	}()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); return nil })

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("op=api.ws view=%s err=%v", v.ID, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack", Payload: mustJSON(v.Summary())})
			go func() {
				ticker := time.NewTicker(wsPingEvery)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong", ID: msg.ID})
		case "pong":
		default:
			if problem := s.applySocketMessage(v, msg); problem != "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: errPayload(problem)})
				continue
			}
			_ = write(wsMessage{Type: "ack", ID: msg.ID})
		}
	}
}

// applySocketMessage runs one client command against the view and returns a
// client-facing error message, or "" on success.
func (s *Server) applySocketMessage(v *routeview.View, msg wsMessage) string {
	switch msg.Type {
	case "hover":
		var p hoverRequest
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return "invalid hover payload"
		}
		p.apply(v)
	case "highlight":
		var p highlightPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.SegmentID == "" {
			return "segmentId required"
		}
		if !v.SetSegmentHighlight(p.SegmentID, p.On) {
			return "segment not found"
		}
	case "filter":
		var p filterPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Category == "" {
			return "category required"
		}
		f := v.Filters()
		if !f.Known(p.Category) {
			return "unknown category"
		}
		if p.Enabled == nil {
			f.Toggle(p.Category)
		} else {
			f.Set(p.Category, *p.Enabled)
		}
	case "recalculate":
		var p segmentPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.SegmentID == "" {
			return "segmentId required"
		}
		if _, ok := v.Manager().GetSegment(p.SegmentID); !ok {
			return "segment not found"
		}
		v.Manager().RecalculateAsync(p.SegmentID)
	default:
		return "unknown message type " + msg.Type
	}
	return ""
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
