package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"dronenav/internal/logger"
	"dronenav/internal/store"
)

// Event types emitted by the planning service.
const (
	EventPlanCompleted   = "plan.completed"
	EventPlanFailed      = "plan.failed"
	EventScenarioCreated = "scenario.created"
)

// Events lists every type a subscription may ask for.
var Events = []string{EventPlanCompleted, EventPlanFailed, EventScenarioCreated}

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit queues an event for every subscription listening to eventType.
// The event id is also the delivery dedup key.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		logger.L().Warn("webhook subscriptions lookup failed", "event", eventType, "err", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.L().Error("webhook payload encode failed", "event", eventType, "err", err)
		return
	}
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			logger.L().Warn("webhook enqueue failed", "event", eventType, "subscription", s.ID, "err", err)
		}
	}
}
