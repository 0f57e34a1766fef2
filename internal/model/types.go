package model

import (
    "time"

    "dronenav/internal/geom"
)

// API shapes. Engines do not depend on these.

type ScenarioRecord struct {
    ID        string    `json:"id"`
    Name      string    `json:"name,omitempty"`
    CreatedAt time.Time `json:"createdAt"`
    Scenario  Scenario  `json:"scenario"`
}

type GeneticParams struct {
    Population    int     `json:"population,omitempty"`
    Generations   int     `json:"generations,omitempty"`
    CrossoverRate float64 `json:"crossoverRate,omitempty"`
    MutationRate  float64 `json:"mutationRate,omitempty"`
    Workers       int     `json:"workers,omitempty"`
}

type PlanRequest struct {
    ScenarioID    string         `json:"scenarioId"`
    Algorithm     string         `json:"algorithm"`
    ReferenceTime string         `json:"referenceTime,omitempty"`
    Seed          int64          `json:"seed,omitempty"`
    Genetic       *GeneticParams `json:"genetic,omitempty"`
}

// Assignment is one delivery scheduled on a vehicle with its projected arrival.
type Assignment struct {
    DeliveryID int       `json:"deliveryId"`
    Arrival    TimeOfDay `json:"arrival"`
}

// PlanResult is the engine-independent outcome of one planning run.
type PlanResult struct {
    Algorithm   string                 `json:"algorithm"`
    Routes      map[int][]int          `json:"routes"`
    Paths       map[int][]geom.Point   `json:"paths"`
    Assignments map[int][]Assignment   `json:"assignments,omitempty"`
    Unassigned  []int                  `json:"unassigned"`
    Stats       map[string]float64     `json:"stats"`
    DurationMs  int64                  `json:"durationMs"`
}

const (
    RunRunning   = "running"
    RunCompleted = "completed"
    RunFailed    = "failed"
)

type Run struct {
    ID         string      `json:"id"`
    ScenarioID string      `json:"scenarioId"`
    Algorithm  string      `json:"algorithm"`
    Seed       int64       `json:"seed,omitempty"`
    Status     string      `json:"status"`
    Error      string      `json:"error,omitempty"`
    CreatedAt  time.Time   `json:"createdAt"`
    FinishedAt *time.Time  `json:"finishedAt,omitempty"`
    Result     *PlanResult `json:"result,omitempty"`
}

type SubscriptionRequest struct {
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret,omitempty"`
}

type Subscription struct {
    ID     string   `json:"id"`
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"-"`
}
