package opt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"dronenav/internal/geom"
	"dronenav/internal/logger"
	"dronenav/internal/model"
)

const (
	AlgoRouter  = "router"
	AlgoCSP     = "csp"
	AlgoGenetic = "genetic"
)

// Algorithms lists the engines Plan accepts.
var Algorithms = []string{AlgoRouter, AlgoCSP, AlgoGenetic}

var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// PlanOptions carries per-run settings. Zero values fall back to defaults.
type PlanOptions struct {
	ReferenceTime *model.TimeOfDay
	Genetic       GeneticConfig
	Progress      func(GenerationReport)
}

// Plan runs one engine over a private copy of sc and returns its result in
// the engine-independent shape. Infeasible deliveries are reported as
// unassigned, never as an error.
func Plan(ctx context.Context, algorithm string, sc model.Scenario, o PlanOptions) (model.PlanResult, error) {
	if err := sc.Validate(); err != nil {
		return model.PlanResult{}, fmt.Errorf("plan: %w", err)
	}
	sc = sc.Clone()
	sc.Reset()
	at := sc.ReferenceTime
	if o.ReferenceTime != nil {
		at = *o.ReferenceTime
	}

	start := time.Now()
	var (
		res model.PlanResult
		err error
	)
	switch algorithm {
	case AlgoRouter:
		res = planRouter(sc, at)
	case AlgoCSP:
		res = planCSP(sc, at)
	case AlgoGenetic:
		res, err = planGenetic(ctx, sc, at, o)
	default:
		return model.PlanResult{}, fmt.Errorf("plan %q: %w", algorithm, ErrUnknownAlgorithm)
	}
	if err != nil {
		return model.PlanResult{}, fmt.Errorf("plan %s: %w", algorithm, err)
	}
	res.Algorithm = algorithm
	res.DurationMs = time.Since(start).Milliseconds()
	logger.L().Debug("plan finished",
		"algorithm", algorithm,
		"scenario", sc.Name,
		"deliveries", len(sc.Deliveries),
		"unassigned", len(res.Unassigned),
		"duration_ms", res.DurationMs,
	)
	return res, nil
}

// planRouter gives each vehicle, in id order, a full-coverage route over the
// deliveries earlier vehicles did not reach.
func planRouter(sc model.Scenario, at model.TimeOfDay) model.PlanResult {
	vehicles := append([]model.Vehicle(nil), sc.Vehicles...)
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].ID < vehicles[j].ID })

	res := newResult(len(vehicles))
	taken := map[int]bool{}
	var hops int
	var cost, energy float64
	for _, v := range vehicles {
		res.Routes[v.ID] = []int{}
		res.Paths[v.ID] = []geom.Point{v.Start}
		var pool []model.DeliveryPoint
		for _, d := range sc.Deliveries {
			if !taken[d.ID] {
				pool = append(pool, d)
			}
		}
		if len(pool) == 0 {
			continue
		}
		r := NewRouter(v, pool, sc.Zones, at)
		pos := v.Start
		for _, hop := range r.FindAllRoutes() {
			hops++
			cost += routeCost(pos, hop)
			for _, d := range hop {
				energy += float64(model.EnergyCost(geom.Distance(pos, d.Position), d.Mass))
				pos = d.Position
				res.Paths[v.ID] = append(res.Paths[v.ID], d.Position)
				if !taken[d.ID] {
					taken[d.ID] = true
					res.Routes[v.ID] = append(res.Routes[v.ID], d.ID)
				}
			}
		}
	}
	for _, d := range sc.Deliveries {
		if !taken[d.ID] {
			res.Unassigned = append(res.Unassigned, d.ID)
		}
	}
	sort.Ints(res.Unassigned)
	res.Stats["deliveries"] = float64(len(taken))
	res.Stats["hops"] = float64(hops)
	res.Stats["totalCost"] = cost
	res.Stats["totalEnergy"] = energy
	res.Stats["completionPct"] = pct(len(taken), len(sc.Deliveries))
	return res
}

func planCSP(sc model.Scenario, at model.TimeOfDay) model.PlanResult {
	s := NewConstraintSolver(sc.Vehicles, sc.Deliveries, sc.Zones, at)
	assignments := s.Solve()
	res := newResult(len(sc.Vehicles))
	res.Assignments = assignments
	for vid, as := range assignments {
		ids := make([]int, len(as))
		for i, a := range as {
			ids[i] = a.DeliveryID
		}
		res.Routes[vid] = ids
	}
	res.Paths = s.Routes()
	res.Unassigned = s.Unassigned()
	st := s.Stats()
	res.Stats["completionPct"] = st.CompletionPct
	res.Stats["meanEnergy"] = st.MeanEnergy
	return res
}

func planGenetic(ctx context.Context, sc model.Scenario, at model.TimeOfDay, o PlanOptions) (model.PlanResult, error) {
	var opts []GeneticOption
	if o.Progress != nil {
		opts = append(opts, WithProgress(o.Progress))
	}
	g := NewGenetic(sc.Vehicles, sc.Deliveries, sc.Zones, at, o.Genetic, opts...)
	best, err := g.EvolveContext(ctx)
	if err != nil {
		return model.PlanResult{}, err
	}
	res := newResult(len(best))
	for vid, ids := range best {
		res.Routes[vid] = ids
	}
	res.Paths = g.Routes()
	covered := map[int]bool{}
	for _, ids := range best {
		for _, id := range ids {
			covered[id] = true
		}
	}
	for _, d := range sc.Deliveries {
		if !covered[d.ID] {
			res.Unassigned = append(res.Unassigned, d.ID)
		}
	}
	sort.Ints(res.Unassigned)
	st := g.Stats()
	res.Stats["totalDeliveries"] = float64(st.TotalDeliveries)
	res.Stats["totalEnergy"] = st.TotalEnergy
	res.Stats["totalViolations"] = float64(st.TotalViolations)
	res.Stats["fitness"] = st.Fitness
	res.Stats["completionPct"] = pct(len(sc.Deliveries)-len(res.Unassigned), len(sc.Deliveries))
	return res, nil
}

func newResult(n int) model.PlanResult {
	return model.PlanResult{
		Routes:     make(map[int][]int, n),
		Paths:      make(map[int][]geom.Point, n),
		Unassigned: []int{},
		Stats:      map[string]float64{},
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
