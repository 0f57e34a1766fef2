package api

import (
    "context"
    "fmt"
    "sync"

    "dronenav/internal/config"
    "dronenav/internal/logger"
    "dronenav/internal/runlog"
    "dronenav/internal/store"
    "dronenav/internal/webhooks"
)

type Server struct {
    Store  store.Store
    Pub    *webhooks.Publisher
    Broker EventBroker
    Cfg    *config.Config
    // RunLog archives finished runs when set.
    RunLog *runlog.Writer

    // background runs share ctx and are cancelled by Shutdown
    ctx    context.Context
    cancel context.CancelFunc
    runs   sync.WaitGroup
}

// NewServer wires the handlers to a store and broker. A nil broker falls
// back to the in-process one.
func NewServer(cfg *config.Config, st store.Store, broker EventBroker) *Server {
    if cfg == nil { cfg = config.Defaults() }
    if broker == nil { broker = NewBroker() }
    ctx, cancel := context.WithCancel(context.Background())
    return &Server{Store: st, Pub: webhooks.NewPublisher(st), Broker: broker, Cfg: cfg, ctx: ctx, cancel: cancel}
}

// OpenStore selects the store named by cfg.Database.Driver.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
    switch cfg.Driver {
    case "", "memory":
        return store.NewMemory(), nil
    case "sqlite":
        return store.OpenSQLite(ctx, cfg.SQLite.Path)
    case "postgres":
        return store.OpenPostgres(ctx, cfg.Postgres.URL)
    }
    return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// OpenBroker returns a Redis broker when a URL is configured, else the
// in-process broker. A Redis that cannot be reached is logged and skipped.
func OpenBroker(ctx context.Context, cfg config.RedisConfig) EventBroker {
    if cfg.URL == "" { return NewBroker() }
    rb, err := NewRedisBroker(cfg.URL, cfg.Prefix)
    if err != nil {
        logger.L().Warn("redis broker disabled", "err", err)
        return NewBroker()
    }
    if err := rb.Ping(ctx); err != nil {
        logger.L().Warn("redis broker unreachable, using in-process broker", "err", err)
        _ = rb.Close()
        return NewBroker()
    }
    return rb
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, webhooks.Options{
        MaxAttempts:  s.Cfg.Webhooks.MaxAttempts,
        PollInterval: s.Cfg.Webhooks.PollInterval,
        Timeout:      s.Cfg.Webhooks.Timeout,
    })
}

// Shutdown cancels runs still in flight and waits for them to record
// their outcome.
func (s *Server) Shutdown() {
    s.cancel()
    s.runs.Wait()
}
