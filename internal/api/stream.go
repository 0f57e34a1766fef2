package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "sync"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/gorilla/websocket"

    "dronenav/internal/metrics"
    "dronenav/internal/model"
)

const heartbeatEvery = 15 * time.Second

func terminal(evtType string) bool { return evtType == EventRunCompleted || evtType == EventRunFailed }

// finishedEvent describes a run that ended before the client subscribed.
func finishedEvent(run model.Run) (SSEEvent, bool) {
    data := map[string]any{"runId": run.ID, "scenarioId": run.ScenarioID, "algorithm": run.Algorithm}
    switch run.Status {
    case model.RunCompleted:
        if run.Result != nil {
            data["stats"] = run.Result.Stats
            data["unassigned"] = len(run.Result.Unassigned)
        }
        return SSEEvent{Type: EventRunCompleted, Data: data}, true
    case model.RunFailed:
        data["error"] = run.Error
        return SSEEvent{Type: EventRunFailed, Data: data}, true
    }
    return SSEEvent{}, false
}

// RunEventsSSE handles GET /v1/runs/{id}/events/stream. The stream ends
// after the run's terminal event.
func (s *Server) RunEventsSSE(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    // subscribe before the lookup so a run finishing in between is not missed
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    run, err := s.Store.GetRun(r.Context(), id)
    if err != nil { writeStoreError(w, r, "Get run failed", err); return }

    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    metrics.StreamClients.Inc()
    defer metrics.StreamClients.Dec()

    send := func(evt SSEEvent) {
        b, _ := json.Marshal(evt.Data)
        fmt.Fprintf(w, "event: %s\n", evt.Type)
        fmt.Fprintf(w, "data: %s\n\n", string(b))
        flusher.Flush()
    }
    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"runId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    if evt, done := finishedEvent(run); done {
        send(evt)
        return
    }
    ticker := time.NewTicker(heartbeatEvery)
    defer ticker.Stop()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt, ok := <-ch:
            if !ok { return }
            send(evt)
            if terminal(evt.Type) { return }
        case <-ticker.C:
            heartbeat()
        }
    }
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
    Type    string          `json:"type"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

// RunEventsWS handles GET /v1/runs/{id}/ws. Every run event is sent as
// {"type":"event","payload":{"type":...,"data":...}}; the connection closes
// after the terminal event. Clients may send {"type":"ping"}.
func (s *Server) RunEventsWS(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    run, err := s.Store.GetRun(r.Context(), id)
    if err != nil { writeStoreError(w, r, "Get run failed", err); return }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()
    metrics.StreamClients.Inc()
    defer metrics.StreamClients.Dec()

    var wmu sync.Mutex
    write := func(v any) error {
        wmu.Lock()
        defer wmu.Unlock()
        _ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
        return conn.WriteJSON(v)
    }
    sendEvent := func(evt SSEEvent) error {
        b, _ := json.Marshal(evt)
        return write(wsMessage{Type: "event", Payload: b})
    }

    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    // re-read after subscribing; the run may have finished meanwhile
    if latest, err := s.Store.GetRun(r.Context(), id); err == nil { run = latest }
    if evt, done := finishedEvent(run); done {
        _ = sendEvent(evt)
        closeNormal(conn, &wmu)
        return
    }

    // read loop: answers pings and notices the client leaving
    gone := make(chan struct{})
    conn.SetReadLimit(1 << 16)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })
    go func() {
        defer close(gone)
        for {
            var msg wsMessage
            if err := conn.ReadJSON(&msg); err != nil { return }
            _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
            if msg.Type == "ping" { _ = write(wsMessage{Type: "pong"}) }
        }
    }()

    ticker := time.NewTicker(20 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-gone:
            return
        case evt, ok := <-ch:
            if !ok { return }
            if err := sendEvent(evt); err != nil { return }
            if terminal(evt.Type) {
                closeNormal(conn, &wmu)
                return
            }
        case <-ticker.C:
            wmu.Lock()
            err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
            wmu.Unlock()
            if err != nil { return }
        }
    }
}

func closeNormal(conn *websocket.Conn, mu *sync.Mutex) {
    mu.Lock()
    defer mu.Unlock()
    msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
    _ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
