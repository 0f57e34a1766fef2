// Package main runs a demo WebSocket client that watches a genetic planning
// run's progress events.
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
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(url string, body []byte, v any) {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("%s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		log.Fatal(err)
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	var sc struct {
		ID string `json:"id"`
	}
	post(base+"/v1/scenarios?standard=2", nil, &sc)
	log.Printf("Scenario ID: %s", sc.ID)

	body, _ := json.Marshal(map[string]any{
		"scenarioId": sc.ID,
		"algorithm":  "genetic",
		"seed":       42,
		"genetic":    map[string]any{"generations": 200},
	})
	var run struct {
		ID string `json:"id"`
	}
	post(base+"/v1/plan", body, &run)
	log.Printf("Run ID: %s", run.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + run.ID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

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

	select {
	case <-time.After(60 * time.Second):
	case <-done:
	}
}
