package store

import (
    "context"
    "errors"
    "time"

    "github.com/google/uuid"

    "dronenav/internal/model"
)

// Store is the persistence interface used by the API server and the
// webhook worker.
type Store interface {
    // Scenarios
    CreateScenario(ctx context.Context, name string, sc model.Scenario) (model.ScenarioRecord, error)
    GetScenario(ctx context.Context, id string) (model.ScenarioRecord, error)
    ListScenarios(ctx context.Context, cursor string, limit int) ([]model.ScenarioRecord, string, error)
    DeleteScenario(ctx context.Context, id string) error

    // Runs
    CreateRun(ctx context.Context, run model.Run) (model.Run, error)
    UpdateRun(ctx context.Context, run model.Run) error
    GetRun(ctx context.Context, id string) (model.Run, error)
    ListRuns(ctx context.Context, scenarioID, cursor string, limit int) ([]model.Run, string, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error)
    RetryWebhookDelivery(ctx context.Context, id string) error

    Ping(ctx context.Context) error
    Close() error
}

var ErrNotFound = errors.New("not found")

const (
    defaultLimit = 100
    maxLimit     = 500
)

func clampLimit(limit int) int {
    if limit <= 0 { return defaultLimit }
    if limit > maxLimit { return maxLimit }
    return limit
}

// newID returns a time-ordered id so listing by id follows creation order.
func newID() string {
    id, err := uuid.NewV7()
    if err != nil { return uuid.New().String() }
    return id.String()
}
