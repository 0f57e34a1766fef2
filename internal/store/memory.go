package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "dronenav/internal/model"
)

// Memory is an in-process store used when no database is configured.
type Memory struct {
    mu         sync.Mutex
    scenarios  map[string]model.ScenarioRecord
    runs       map[string]model.Run
    subs       map[string]model.Subscription
    deliveries map[string]*WebhookDelivery
    dedup      map[string]string // event|url|key -> delivery id
}

func NewMemory() *Memory {
    return &Memory{
        scenarios:  map[string]model.ScenarioRecord{},
        runs:       map[string]model.Run{},
        subs:       map[string]model.Subscription{},
        deliveries: map[string]*WebhookDelivery{},
        dedup:      map[string]string{},
    }
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

// page returns up to limit ids after cursor, in id order, and the next cursor.
func page(ids []string, cursor string, limit int) ([]string, string) {
    sort.Strings(ids)
    limit = clampLimit(limit)
    start := 0
    if cursor != "" {
        start = sort.SearchStrings(ids, cursor)
        if start < len(ids) && ids[start] == cursor { start++ }
    }
    end := start + limit
    if end > len(ids) { end = len(ids) }
    out := ids[start:end]
    next := ""
    if end < len(ids) && len(out) > 0 { next = out[len(out)-1] }
    return out, next
}

func (m *Memory) CreateScenario(ctx context.Context, name string, sc model.Scenario) (model.ScenarioRecord, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if name == "" { name = sc.Name }
    rec := model.ScenarioRecord{ID: newID(), Name: name, CreatedAt: time.Now().UTC(), Scenario: sc.Clone()}
    m.scenarios[rec.ID] = rec
    return rec, nil
}

func (m *Memory) GetScenario(ctx context.Context, id string) (model.ScenarioRecord, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    rec, ok := m.scenarios[id]
    if !ok { return model.ScenarioRecord{}, ErrNotFound }
    rec.Scenario = rec.Scenario.Clone()
    return rec, nil
}

func (m *Memory) ListScenarios(ctx context.Context, cursor string, limit int) ([]model.ScenarioRecord, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := make([]string, 0, len(m.scenarios))
    for id := range m.scenarios { ids = append(ids, id) }
    ids, next := page(ids, cursor, limit)
    out := make([]model.ScenarioRecord, 0, len(ids))
    for _, id := range ids {
        rec := m.scenarios[id]
        rec.Scenario = rec.Scenario.Clone()
        out = append(out, rec)
    }
    return out, next, nil
}

func (m *Memory) DeleteScenario(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.scenarios[id]; !ok { return ErrNotFound }
    delete(m.scenarios, id)
    return nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    run.ID = newID()
    if run.CreatedAt.IsZero() { run.CreatedAt = time.Now().UTC() }
    if run.Status == "" { run.Status = model.RunRunning }
    m.runs[run.ID] = run
    return run, nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.runs[run.ID]; !ok { return ErrNotFound }
    m.runs[run.ID] = run
    return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.runs[id]
    if !ok { return model.Run{}, ErrNotFound }
    return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, scenarioID, cursor string, limit int) ([]model.Run, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := []string{}
    for id, r := range m.runs {
        if scenarioID == "" || r.ScenarioID == scenarioID { ids = append(ids, id) }
    }
    ids, next := page(ids, cursor, limit)
    out := make([]model.Run, 0, len(ids))
    for _, id := range ids { out = append(out, m.runs[id]) }
    return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: newID(), URL: req.URL, Events: append([]string(nil), req.Events...), Secret: req.Secret}
    m.subs[s.ID] = s
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := make([]string, 0, len(m.subs))
    for id := range m.subs { ids = append(ids, id) }
    sort.Strings(ids)
    var out []model.Subscription
    for _, id := range ids {
        s := m.subs[id]
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := make([]string, 0, len(m.subs))
    for id := range m.subs { ids = append(ids, id) }
    ids, next := page(ids, cursor, limit)
    out := make([]model.Subscription, 0, len(ids))
    for _, id := range ids { out = append(out, m.subs[id]) }
    return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.subs[id]; !ok { return ErrNotFound }
    delete(m.subs, id)
    return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    key := eventType + "|" + url + "|" + computeDedupKey(payload)
    if id, ok := m.dedup[key]; ok { return id, nil }
    now := time.Now()
    d := &WebhookDelivery{ID: newID(), SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret,
        Payload: append([]byte(nil), payload...), Status: DeliveryPending, NextAttemptAt: &now}
    m.deliveries[d.ID] = d
    m.dedup[key] = d.ID
    return d.ID, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    due := []*WebhookDelivery{}
    for _, d := range m.deliveries {
        if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && (d.NextAttemptAt == nil || !d.NextAttemptAt.After(now)) {
            due = append(due, d)
        }
    }
    sort.Slice(due, func(i, j int) bool {
        a, b := due[i].NextAttemptAt, due[j].NextAttemptAt
        if a != nil && b != nil && !a.Equal(*b) { return a.Before(*b) }
        return due[i].ID < due[j].ID
    })
    out := []WebhookDelivery{}
    for _, d := range due {
        if limit > 0 && len(out) >= limit { break }
        out = append(out, *d)
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        now := time.Now()
        d.Status = DeliveryDelivered
        d.DeliveredAt = &now
        d.NextAttemptAt = nil
        return nil
    }
    d.Status = DeliveryRetry
    d.LastError = lastError
    next := time.Now().Add(time.Minute)
    if nextAttemptAt != nil { next = *nextAttemptAt }
    d.NextAttemptAt = &next
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    d.NextAttemptAt = nil
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := []string{}
    for id, d := range m.deliveries {
        if status == "" || d.Status == status { ids = append(ids, id) }
    }
    ids, next := page(ids, cursor, limit)
    out := make([]WebhookDelivery, 0, len(ids))
    for _, id := range ids { out = append(out, *m.deliveries[id]) }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    now := time.Now()
    d.Status = DeliveryPending
    d.NextAttemptAt = &now
    return nil
}
