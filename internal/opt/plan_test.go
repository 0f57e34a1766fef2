package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dronenav/internal/geom"
	"dronenav/internal/model"
)

func capacityScenario(t *testing.T) model.Scenario {
	return model.Scenario{
		Name:          "capacity",
		ReferenceTime: model.Clock(9, 0, 0),
		Vehicles:      []model.Vehicle{vehicle(t, 1, 5, 10000, 10, geom.Point{})},
		Deliveries: []model.DeliveryPoint{
			delivery(t, 1, geom.Point{X: 10}, 1, 5, model.AllDay),
			delivery(t, 2, geom.Point{Y: 10}, 6, 5, model.AllDay),
		},
	}
}

func TestPlan_UnknownAlgorithm(t *testing.T) {
	_, err := Plan(context.Background(), "simulated-annealing", capacityScenario(t), PlanOptions{})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestPlan_InvalidScenario(t *testing.T) {
	sc := capacityScenario(t)
	sc.Deliveries[1].Priority = 9
	_, err := Plan(context.Background(), AlgoCSP, sc, PlanOptions{})
	assert.ErrorIs(t, err, model.ErrInvalidPriority)
}

func TestPlan_CSP(t *testing.T) {
	res, err := Plan(context.Background(), AlgoCSP, capacityScenario(t), PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, AlgoCSP, res.Algorithm)
	assert.Equal(t, []int{1}, res.Routes[1])
	assert.Equal(t, []int{2}, res.Unassigned)
	assert.InDelta(t, 50.0, res.Stats["completionPct"], 1e-9)
	require.Len(t, res.Assignments[1], 1)
}

func TestPlan_Router(t *testing.T) {
	res, err := Plan(context.Background(), AlgoRouter, capacityScenario(t), PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Routes[1])
	assert.Equal(t, []int{2}, res.Unassigned)
	assert.Equal(t, []geom.Point{{}, {X: 10}}, res.Paths[1])
	assert.InDelta(t, 110, res.Stats["totalEnergy"], 1e-9)
}

func TestPlan_RouterSharesWorkAcrossFleet(t *testing.T) {
	sc := capacityScenario(t)
	sc.Vehicles = append(sc.Vehicles, vehicle(t, 2, 8, 10000, 10, geom.Point{}))
	res, err := Plan(context.Background(), AlgoRouter, sc, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Routes[1])
	assert.Equal(t, []int{2}, res.Routes[2])
	assert.Empty(t, res.Unassigned)
}

func TestPlan_Genetic(t *testing.T) {
	var gens int
	o := PlanOptions{
		Genetic:  GeneticConfig{Population: 10, Generations: 5, CrossoverRate: 0.8, MutationRate: 0.2, Seed: 1},
		Progress: func(GenerationReport) { gens++ },
	}
	res, err := Plan(context.Background(), AlgoGenetic, capacityScenario(t), o)
	require.NoError(t, err)
	assert.Empty(t, res.Unassigned)
	assert.Equal(t, 5, gens)
	assert.Equal(t, 2.0, res.Stats["totalDeliveries"])
	// the 6kg parcel is always an overweight violation
	assert.GreaterOrEqual(t, res.Stats["totalViolations"], 1.0)
}

func TestPlan_GeneticZeroOptionsUseDefaults(t *testing.T) {
	var gens int
	o := PlanOptions{
		Genetic:  GeneticConfig{Seed: 5},
		Progress: func(GenerationReport) { gens++ },
	}
	res, err := Plan(context.Background(), AlgoGenetic, capacityScenario(t), o)
	require.NoError(t, err)
	assert.Equal(t, DefaultGeneticConfig().Generations, gens)
	assert.Equal(t, AlgoGenetic, res.Algorithm)

	g := NewGenetic(nil, nil, nil, 0, GeneticConfig{})
	def := DefaultGeneticConfig()
	assert.Equal(t, def.Population, g.cfg.Population)
	assert.Equal(t, def.CrossoverRate, g.cfg.CrossoverRate)
	assert.Equal(t, def.MutationRate, g.cfg.MutationRate)
}

func TestPlan_ReferenceTimeOverride(t *testing.T) {
	sc := capacityScenario(t)
	sc.Deliveries[0].Window = model.Window{Start: model.Clock(14, 0, 0), End: model.Clock(15, 0, 0)}
	at := model.Clock(14, 30, 0)
	res, err := Plan(context.Background(), AlgoCSP, sc, PlanOptions{ReferenceTime: &at})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Routes[1])
}

func TestPlan_LeavesInputUntouched(t *testing.T) {
	sc := capacityScenario(t)
	for _, algo := range Algorithms {
		_, err := Plan(context.Background(), algo, sc, PlanOptions{Genetic: GeneticConfig{Population: 4, Generations: 2, Seed: 3}})
		require.NoError(t, err)
	}
	assert.Equal(t, 10000, sc.Vehicles[0].Energy)
	assert.False(t, sc.Deliveries[0].Delivered)
}

func TestMetricsStore(t *testing.T) {
	RecordMetrics("sc-1", model.PlanResult{Algorithm: AlgoCSP, Stats: map[string]float64{"completionPct": 50}, Unassigned: []int{2}})
	RecordMetrics("sc-1", model.PlanResult{Algorithm: AlgoRouter, Stats: map[string]float64{"completionPct": 100}})
	RecordMetrics("sc-2", model.PlanResult{Algorithm: AlgoCSP})
	got := GetMetrics("sc-1")
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[AlgoCSP].Unassigned)
	assert.Equal(t, 100.0, got[AlgoRouter].Stats["completionPct"])
}
