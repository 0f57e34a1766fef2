package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"dronenav/internal/geom"
	"dronenav/internal/model"
)

func vehicle(t *testing.T, id int, payload float64, energy int, speed float64, start geom.Point) model.Vehicle {
	t.Helper()
	v, err := model.NewVehicle(id, payload, energy, speed, start)
	require.NoError(t, err)
	return v
}

func delivery(t *testing.T, id int, pos geom.Point, mass float64, priority int, w model.Window) model.DeliveryPoint {
	t.Helper()
	d, err := model.NewDeliveryPoint(id, pos, mass, priority, w)
	require.NoError(t, err)
	return d
}

func zone(t *testing.T, id int, minX, minY, maxX, maxY float64, w model.Window) model.NoFlyZone {
	t.Helper()
	z, err := model.NewNoFlyZone(id, []geom.Point{{X: minX, Y: minY}, {X: maxX, Y: minY}, {X: maxX, Y: maxY}, {X: minX, Y: maxY}}, w)
	require.NoError(t, err)
	return z
}

// randomFleet builds a small random scenario on a 100x100 grid.
func randomFleet(t *testing.T, rng *rand.Rand, nv, nd int) ([]model.Vehicle, []model.DeliveryPoint) {
	t.Helper()
	var vs []model.Vehicle
	for i := 0; i < nv; i++ {
		vs = append(vs, vehicle(t, i+1, 1+rng.Float64()*4, 1000+rng.Intn(4000), 5+rng.Float64()*10,
			geom.Point{X: rng.Float64() * 100, Y: rng.Float64() * 100}))
	}
	var ds []model.DeliveryPoint
	for i := 0; i < nd; i++ {
		ds = append(ds, delivery(t, i+1, geom.Point{X: rng.Float64() * 100, Y: rng.Float64() * 100},
			0.5+rng.Float64()*4, 1+rng.Intn(5), model.AllDay))
	}
	return vs, ds
}
