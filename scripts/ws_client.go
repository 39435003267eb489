// Package main runs a demo WebSocket client: it mounts a route view on the
// first delivery, hovers its first stop and prints what the server pushes.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	provider := os.Getenv("MAP_PROVIDER")

	// Pick the first delivery
	resp, err := http.Get(base + "/v1/deliveries")
	if err != nil {
		log.Fatal(err)
	}
	var list struct {
		Items []struct {
			ID       string   `json:"id"`
			OrderIDs []string `json:"orderIds"`
		} `json:"items"`
	}
	err = json.NewDecoder(resp.Body).Decode(&list)
	_ = resp.Body.Close()
	if err != nil {
		log.Fatal(err)
	}
	if len(list.Items) == 0 || len(list.Items[0].OrderIDs) == 0 {
		log.Fatal("no delivery with stops; start the API with SEED_DEMO=true")
	}
	delivery := list.Items[0]

	// Mount a view
	body, _ := json.Marshal(map[string]string{"deliveryId": delivery.ID, "provider": provider})
	resp, err = http.Post(base+"/v1/views", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	var view struct {
		ViewID string `json:"viewId"`
	}
	err = json.NewDecoder(resp.Body).Decode(&view)
	_ = resp.Body.Close()
	if err != nil || view.ViewID == "" {
		log.Fatalf("mount failed: status=%d err=%v", resp.StatusCode, err)
	}
	log.Printf("View ID: %s", view.ViewID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/views/" + view.ViewID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Hover the first stop, then clear it
	time.Sleep(500 * time.Millisecond)
	hover, _ := json.Marshal(map[string]string{"orderId": delivery.OrderIDs[0]})
	_ = c.WriteJSON(wsMessage{Type: "hover", ID: "1", Payload: hover})
	time.Sleep(500 * time.Millisecond)
	reset, _ := json.Marshal(map[string]string{"orderId": ""})
	_ = c.WriteJSON(wsMessage{Type: "hover", ID: "2", Payload: reset})

	// Wait briefly to receive the route updates
	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
	req, _ := http.NewRequest(http.MethodDelete, base+"/v1/views/"+view.ViewID, nil)
	if resp, err := http.DefaultClient.Do(req); err == nil {
		_ = resp.Body.Close()
	}
}
