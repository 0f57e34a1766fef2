package scenario

import (
	"fmt"

	"dronenav/internal/geom"
	"dronenav/internal/model"
)

// StandardConfig returns the generator settings of benchmark scenario n.
//
//	1: 5 vehicles, 20 deliveries, 2 zones on 100x100 from (10,10), seed 42
//	2: 10 vehicles, 50 deliveries, 5 zones on 200x200 from (20,20), seed 43
func StandardConfig(n int) (GenConfig, error) {
	ref := model.Clock(10, 0, 0)
	switch n {
	case 1:
		return GenConfig{Name: "standard-1", Seed: 42, Vehicles: 5, Deliveries: 20, Zones: 2,
			Width: 100, Height: 100, Start: &geom.Point{X: 10, Y: 10}, ReferenceTime: ref}, nil
	case 2:
		return GenConfig{Name: "standard-2", Seed: 43, Vehicles: 10, Deliveries: 50, Zones: 5,
			Width: 200, Height: 200, Start: &geom.Point{X: 20, Y: 20}, ReferenceTime: ref}, nil
	}
	return GenConfig{}, fmt.Errorf("no standard scenario %d", n)
}

func Standard(n int) (model.Scenario, error) {
	cfg, err := StandardConfig(n)
	if err != nil {
		return model.Scenario{}, err
	}
	return Generate(cfg)
}
