package webhooks

import (
    "bytes"
    "context"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "dronenav/internal/logger"
    "dronenav/internal/metrics"
    "dronenav/internal/store"
)

type Worker struct {
    Store        store.Store
    HTTP         *http.Client
    Stop         chan struct{}
    MaxAttempts  int
    PollInterval time.Duration
    BatchSize    int
}

type Options struct {
    MaxAttempts  int
    PollInterval time.Duration
    Timeout      time.Duration
}

func NewWorker(s store.Store, o Options) *Worker {
    if o.MaxAttempts <= 0 { o.MaxAttempts = 10 }
    if o.PollInterval <= 0 { o.PollInterval = time.Second }
    if o.Timeout <= 0 { o.Timeout = 5 * time.Second }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: o.Timeout}, Stop: make(chan struct{}),
        MaxAttempts: o.MaxAttempts, PollInterval: o.PollInterval, BatchSize: 50}
}

func (w *Worker) Start() {
    go func() {
        ticker := time.NewTicker(w.PollInterval)
        defer ticker.Stop()
        for {
            select {
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce()
            }
        }
    }()
}

func (w *Worker) processOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.BatchSize)
    if err != nil {
        logger.L().Warn("webhook fetch failed", "err", err)
        return
    }
    for _, it := range items { w.deliver(ctx, it) }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
    log := logger.L().With("delivery", it.ID, "event", it.EventType, "url", it.URL)
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err != nil {
        // a url that cannot form a request never will
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
        w.observe(it.EventType, store.DeliveryFailed, 0)
        log.Warn("webhook dropped", "err", err)
        return
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set(HeaderEventType, it.EventType)
    req.Header.Set(HeaderDelivery, it.ID)
    if it.Secret != "" { req.Header.Set(HeaderSignature, SignHMAC(it.Secret, it.Payload)) }

    start := time.Now()
    resp, err := w.HTTP.Do(req)
    latency := int(time.Since(start).Milliseconds())
    code := 0
    success := false
    if err == nil && resp != nil {
        code = resp.StatusCode
        if resp.Body != nil { _ = resp.Body.Close() }
        if code >= 200 && code < 300 { success = true }
    }
    lastErr := ""
    if !success {
        if err != nil { lastErr = err.Error() } else { lastErr = "status " + strconv.Itoa(code) }
    }
    if !success && it.Attempts+1 >= w.MaxAttempts {
        if err := w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency); err != nil {
            log.Error("webhook fail update", "err", err)
        }
        w.observe(it.EventType, store.DeliveryFailed, latency)
        log.Warn("webhook gave up", "attempts", it.Attempts+1, "lastError", lastErr)
        return
    }
    next := time.Now().Add(nextBackoff(it.Attempts))
    if err := w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency); err != nil {
        log.Error("webhook mark update", "err", err)
    }
    if success {
        w.observe(it.EventType, store.DeliveryDelivered, latency)
        log.Debug("webhook delivered", "code", code, "latencyMs", latency)
        return
    }
    w.observe(it.EventType, store.DeliveryRetry, latency)
    log.Info("webhook retry scheduled", "attempt", it.Attempts+1, "next", next.Format(time.RFC3339), "lastError", lastErr)
}

func (w *Worker) observe(eventType, status string, latency int) {
    metrics.WebhookDeliveries.WithLabelValues(eventType, status).Inc()
    metrics.WebhookLatency.WithLabelValues(eventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 12 { attempts = 12 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}

// String is used in logs of the startup banner.
func (w *Worker) String() string {
    return fmt.Sprintf("webhooks(maxAttempts=%d poll=%s)", w.MaxAttempts, w.PollInterval)
}
