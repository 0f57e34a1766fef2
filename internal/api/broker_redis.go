package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"

    "dronenav/internal/logger"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so run events reach
// stream clients connected to any instance.
type RedisBroker struct {
    rdb    *redis.Client
    prefix string

    mu   sync.Mutex
    subs map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(url, prefix string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return NewRedisBrokerClient(redis.NewClient(opt), prefix), nil
}

func NewRedisBrokerClient(rdb *redis.Client, prefix string) *RedisBroker {
    return &RedisBroker{rdb: rdb, prefix: prefix, subs: map[chan SSEEvent]*redis.PubSub{}}
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Subscribe(topic string) chan SSEEvent {
    ch := make(chan SSEEvent, 32)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(topic))
    // wait for the subscription confirmation so no publish is missed
    if _, err := ps.Receive(ctx); err != nil {
        logger.L().Warn("redis subscribe failed", "topic", topic, "err", err)
    }
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt SSEEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the Pub/Sub connection; the fan-out goroutine then
// closes ch.
func (b *RedisBroker) Unsubscribe(topic string, ch chan SSEEvent) {
    b.mu.Lock()
    ps := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(topic string, evt SSEEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, err := json.Marshal(evt)
    if err != nil { return }
    if err := b.rdb.Publish(ctx, b.chanName(topic), data).Err(); err != nil {
        logger.L().Warn("redis publish failed", "topic", topic, "err", err)
    }
}

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) chanName(topic string) string { return b.prefix + topic }
