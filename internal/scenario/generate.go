// Package scenario builds planning problems: seeded random generation, the
// standard benchmark scenarios and the text, YAML and JSON file formats.
package scenario

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"dronenav/internal/geom"
	"dronenav/internal/model"
)

// GenConfig sizes a generated scenario. A nil Start scatters vehicles
// across the area; Seed 0 seeds from the clock.
type GenConfig struct {
	Name          string
	Seed          int64
	Vehicles      int
	Deliveries    int
	Zones         int
	Width         float64
	Height        float64
	Start         *geom.Point
	ReferenceTime model.TimeOfDay
}

// latest hour any generated window may run to
const closingHour = 18

var quarters = []int{0, 15, 30, 45}

type generator struct {
	rng  *rand.Rand
	w, h float64
}

func (g *generator) uniform(lo, hi float64) float64 { return lo + (hi-lo)*g.rng.Float64() }

// randint is inclusive on both ends.
func (g *generator) randint(lo, hi int) int { return lo + g.rng.Intn(hi-lo+1) }

func (g *generator) quarter() int { return quarters[g.rng.Intn(len(quarters))] }

// window opens at a random quarter hour in [fromH, toH] and lasts between
// minLen and maxLen whole hours, never past closing.
func (g *generator) window(fromH, toH, minLen, maxLen int) model.Window {
	sh, sm := g.randint(fromH, toH), g.quarter()
	eh, em := sh+g.randint(minLen, maxLen), g.quarter()
	if eh >= closingHour {
		eh, em = closingHour, 0
	}
	return model.Window{Start: model.Clock(sh, sm, 0), End: model.Clock(eh, em, 0)}
}

// Generate returns a random scenario. The same config always yields the
// same scenario.
func Generate(cfg GenConfig) (model.Scenario, error) {
	if cfg.Vehicles < 0 || cfg.Deliveries < 0 || cfg.Zones < 0 {
		return model.Scenario{}, fmt.Errorf("generate: negative count")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return model.Scenario{}, fmt.Errorf("generate: area must be positive, got %gx%g", cfg.Width, cfg.Height)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &generator{rng: rand.New(rand.NewSource(seed)), w: cfg.Width, h: cfg.Height}
	sc := model.Scenario{Name: cfg.Name, ReferenceTime: cfg.ReferenceTime}

	for i := 0; i < cfg.Vehicles; i++ {
		start := geom.Point{X: g.uniform(0, g.w), Y: g.uniform(0, g.h)}
		if cfg.Start != nil {
			start = *cfg.Start
		}
		payload := g.uniform(1, 5)
		energy := g.randint(5000, 10000)
		speed := g.uniform(5, 15)
		v, err := model.NewVehicle(i, payload, energy, speed, start)
		if err != nil {
			return model.Scenario{}, err
		}
		sc.Vehicles = append(sc.Vehicles, v)
	}

	for i := 0; i < cfg.Deliveries; i++ {
		pos := geom.Point{X: g.uniform(0, g.w), Y: g.uniform(0, g.h)}
		mass := g.uniform(0.5, 4)
		priority := g.randint(model.MinPriority, model.MaxPriority)
		d, err := model.NewDeliveryPoint(i, pos, mass, priority, g.window(8, 16, 1, 3))
		if err != nil {
			return model.Scenario{}, err
		}
		sc.Deliveries = append(sc.Deliveries, d)
	}

	for i := 0; i < cfg.Zones; i++ {
		z, err := model.NewNoFlyZone(i, g.polygon(), g.window(8, 14, 2, 6))
		if err != nil {
			return model.Scenario{}, err
		}
		sc.Zones = append(sc.Zones, z)
	}
	return sc, nil
}

// polygon is a jittered regular polygon of 3 to 6 vertices clamped to the area.
func (g *generator) polygon() []geom.Point {
	cx, cy := g.uniform(0, g.w), g.uniform(0, g.h)
	radius := g.uniform(5, 15)
	n := g.randint(3, 6)
	pts := make([]geom.Point, n)
	for j := range pts {
		angle := 2*math.Pi*float64(j)/float64(n) + g.uniform(-0.2, 0.2)
		r := radius * g.uniform(0.8, 1.2)
		pts[j] = geom.Point{
			X: clamp(cx+r*math.Cos(angle), 0, g.w),
			Y: clamp(cy+r*math.Sin(angle), 0, g.h),
		}
	}
	return pts
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(v, hi)) }
