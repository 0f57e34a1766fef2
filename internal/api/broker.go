package api

import (
    "sync"
)

// SSEEvent is one message on a run's event topic.
type SSEEvent struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// Event types published on a run topic.
const (
    EventRunStarted   = "run.started"
    EventRunProgress  = "run.progress"
    EventRunCompleted = "run.completed"
    EventRunFailed    = "run.failed"
)

type EventBroker interface {
    Subscribe(topic string) chan SSEEvent
    Unsubscribe(topic string, ch chan SSEEvent)
    Publish(topic string, evt SSEEvent)
}

// Broker fans events out in process. Slow subscribers drop events rather
// than block the publisher.
type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan SSEEvent]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan SSEEvent {
    ch := make(chan SSEEvent, 32)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan SSEEvent]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan SSEEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[topic]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, topic) }
    close(ch)
}

func (b *Broker) Publish(topic string, evt SSEEvent) {
    b.mu.Lock()
    m := b.subs[topic]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
