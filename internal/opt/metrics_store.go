package opt

import (
	"sync"
	"time"

	"dronenav/internal/model"
)

// Summary is the last recorded outcome of one engine on one scenario.
type Summary struct {
	Stats      map[string]float64 `json:"stats"`
	Unassigned int                `json:"unassigned"`
	DurationMs int64              `json:"durationMs"`
	RecordedAt time.Time          `json:"recordedAt"`
}

type key struct {
	Scenario string
	Algo     string
}

var (
	mu    sync.Mutex
	store = map[key]Summary{}
)

func RecordMetrics(scenarioID string, res model.PlanResult) {
	stats := make(map[string]float64, len(res.Stats))
	for k, v := range res.Stats {
		stats[k] = v
	}
	mu.Lock()
	store[key{Scenario: scenarioID, Algo: res.Algorithm}] = Summary{
		Stats:      stats,
		Unassigned: len(res.Unassigned),
		DurationMs: res.DurationMs,
		RecordedAt: time.Now().UTC(),
	}
	mu.Unlock()
}

// GetMetrics returns algorithm -> summary for a scenario.
func GetMetrics(scenarioID string) map[string]Summary {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Summary{}
	for k, v := range store {
		if k.Scenario == scenarioID {
			out[k.Algo] = v
		}
	}
	return out
}
