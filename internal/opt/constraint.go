package opt

import (
	"math"
	"sort"
	"time"

	"dronenav/internal/geom"
	"dronenav/internal/model"
)

// ConstraintSolver greedily assigns each delivery, highest priority first,
// to the feasible vehicle with the lowest score. It owns copies of every
// vehicle and delivery so runs never affect each other or the caller.
type ConstraintSolver struct {
	vehicles   []model.Vehicle // sorted by id
	deliveries []model.DeliveryPoint
	zones      []model.NoFlyZone
	start      model.TimeOfDay

	assignments map[int][]model.Assignment
	solved      bool
}

// SolverStats summarizes a ConstraintSolver run.
type SolverStats struct {
	CompletionPct float64 `json:"completionPct"`
	MeanEnergy    float64 `json:"meanEnergy"`
}

func NewConstraintSolver(vehicles []model.Vehicle, deliveries []model.DeliveryPoint, zones []model.NoFlyZone, start model.TimeOfDay) *ConstraintSolver {
	s := &ConstraintSolver{
		vehicles:    append([]model.Vehicle(nil), vehicles...),
		deliveries:  append([]model.DeliveryPoint(nil), deliveries...),
		zones:       make([]model.NoFlyZone, len(zones)),
		start:       start,
		assignments: make(map[int][]model.Assignment, len(vehicles)),
	}
	sort.SliceStable(s.vehicles, func(i, j int) bool { return s.vehicles[i].ID < s.vehicles[j].ID })
	for i := range s.vehicles {
		s.vehicles[i].Reset()
	}
	for _, v := range vehicles {
		s.assignments[v.ID] = []model.Assignment{}
	}
	for i, z := range zones {
		s.zones[i] = z.Clone()
	}
	return s
}

// travelTime is the flight duration from a to b at the vehicle's speed.
func travelTime(v model.Vehicle, a, b geom.Point) time.Duration {
	secs := geom.Distance(a, b) / v.Speed
	return time.Duration(math.Round(secs * float64(time.Second)))
}

func (s *ConstraintSolver) pathClear(a, b geom.Point, at model.TimeOfDay) bool {
	for _, z := range s.zones {
		if z.ActiveAt(at) && z.Crosses(a, b) {
			return false
		}
	}
	return true
}

// feasible checks capacity, zones active at now, energy and the arrival window.
func (s *ConstraintSolver) feasible(v model.Vehicle, d model.DeliveryPoint, now model.TimeOfDay) bool {
	if !v.CanCarry(d.Mass) {
		return false
	}
	if !s.pathClear(v.Position, d.Position, now) {
		return false
	}
	dist := geom.Distance(v.Position, d.Position)
	if !v.HasEnergyFor(dist, d.Mass) {
		return false
	}
	arrival := now.Add(travelTime(v, v.Position, d.Position))
	return d.InWindow(arrival)
}

// bestVehicle returns the index of the lowest-scoring feasible vehicle, or -1.
// Vehicles are scanned in id order and only a strictly lower score replaces
// the incumbent, so ties go to the lowest id.
func (s *ConstraintSolver) bestVehicle(d model.DeliveryPoint, now model.TimeOfDay) int {
	best := -1
	bestScore := math.Inf(1)
	for i, v := range s.vehicles {
		if !v.Available || !s.feasible(v, d, now) {
			continue
		}
		score := geom.Distance(v.Position, d.Position) + priorityBonus(d.Priority)
		if score < bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

// Solve runs the assignment pass and returns vehicle id -> ordered
// (delivery, arrival) pairs. Every decision uses the configured start time
// as the clock; arrival times are projected from it.
func (s *ConstraintSolver) Solve() map[int][]model.Assignment {
	if s.solved {
		return s.Assignments()
	}
	order := make([]int, len(s.deliveries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.deliveries[order[a]].Priority > s.deliveries[order[b]].Priority
	})

	now := s.start
	for _, di := range order {
		d := &s.deliveries[di]
		vi := s.bestVehicle(*d, now)
		if vi < 0 {
			continue
		}
		v := &s.vehicles[vi]
		dist := geom.Distance(v.Position, d.Position)
		arrival := now.Add(travelTime(*v, v.Position, d.Position))
		v.MoveTo(d.Position, dist, d.Mass)
		v.Load = 0
		d.Delivered = true
		s.assignments[v.ID] = append(s.assignments[v.ID], model.Assignment{DeliveryID: d.ID, Arrival: arrival})
	}
	s.solved = true
	return s.Assignments()
}

// Assignments returns a copy of the current plan.
func (s *ConstraintSolver) Assignments() map[int][]model.Assignment {
	out := make(map[int][]model.Assignment, len(s.assignments))
	for id, as := range s.assignments {
		out[id] = append([]model.Assignment{}, as...)
	}
	return out
}

// Unassigned lists delivery ids no vehicle took, ascending.
func (s *ConstraintSolver) Unassigned() []int {
	taken := map[int]bool{}
	for _, as := range s.assignments {
		for _, a := range as {
			taken[a.DeliveryID] = true
		}
	}
	out := []int{}
	for _, d := range s.deliveries {
		if !taken[d.ID] {
			out = append(out, d.ID)
		}
	}
	sort.Ints(out)
	return out
}

// Routes returns each vehicle's start followed by its delivery positions.
func (s *ConstraintSolver) Routes() map[int][]geom.Point {
	pos := make(map[int]geom.Point, len(s.deliveries))
	for _, d := range s.deliveries {
		pos[d.ID] = d.Position
	}
	out := make(map[int][]geom.Point, len(s.vehicles))
	for _, v := range s.vehicles {
		route := []geom.Point{v.Start}
		for _, a := range s.assignments[v.ID] {
			route = append(route, pos[a.DeliveryID])
		}
		out[v.ID] = route
	}
	return out
}

// Stats reports the assigned share of deliveries as a percentage and the
// mean of capacity minus remaining energy across the fleet.
func (s *ConstraintSolver) Stats() SolverStats {
	var st SolverStats
	assigned := 0
	for _, as := range s.assignments {
		assigned += len(as)
	}
	if len(s.deliveries) > 0 {
		st.CompletionPct = float64(assigned) / float64(len(s.deliveries)) * 100
	}
	if len(s.vehicles) > 0 {
		used := 0
		for _, v := range s.vehicles {
			used += v.EnergyCapacity - v.Energy
		}
		st.MeanEnergy = float64(used) / float64(len(s.vehicles))
	}
	return st
}
