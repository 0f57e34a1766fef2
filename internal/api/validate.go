package api

import (
	"fmt"
	"net/url"
	"slices"

	"dronenav/internal/model"
	"dronenav/internal/opt"
	"dronenav/internal/webhooks"
)

func validatePlanRequest(req *model.PlanRequest) error {
	if req.ScenarioID == "" {
		return fmt.Errorf("scenarioId is required")
	}
	if !slices.Contains(opt.Algorithms, req.Algorithm) {
		return fmt.Errorf("invalid algorithm: %q (allowed: %v)", req.Algorithm, opt.Algorithms)
	}
	if req.ReferenceTime != "" {
		if _, err := model.ParseTimeOfDay(req.ReferenceTime); err != nil {
			return fmt.Errorf("referenceTime: %w", err)
		}
	}
	if g := req.Genetic; g != nil {
		if g.Population < 0 || g.Generations < 0 || g.Workers < 0 {
			return fmt.Errorf("genetic population, generations and workers must be >= 0")
		}
		if g.CrossoverRate < 0 || g.CrossoverRate > 1 {
			return fmt.Errorf("genetic crossoverRate must be in [0,1]")
		}
		if g.MutationRate < 0 || g.MutationRate > 1 {
			return fmt.Errorf("genetic mutationRate must be in [0,1]")
		}
	}
	return nil
}

func validateSubscription(req *model.SubscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) url")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	for _, e := range req.Events {
		if !slices.Contains(webhooks.Events, e) {
			return fmt.Errorf("unknown event type: %q (allowed: %v)", e, webhooks.Events)
		}
	}
	return nil
}
