package opt

import (
	"container/heap"
	"math"
	"sort"

	"dronenav/internal/geom"
	"dronenav/internal/model"
)

const (
	// zonePenalty is added to the heuristic for every active zone the
	// straight line to the goal crosses.
	zonePenalty = 1000.0
	// startID marks the virtual delivery placed at a vehicle's start.
	startID = -1
)

// priorityBonus is 100 for priority 5 and 500 for priority 1.
func priorityBonus(priority int) float64 { return float64(6-priority) * 100 }

// EdgeCost is the cost of flying from a position to d:
// distance * mass + (6 - priority) * 100.
func EdgeCost(from geom.Point, d model.DeliveryPoint) float64 {
	return geom.Distance(from, d.Position)*d.Mass + priorityBonus(d.Priority)
}

// Router runs best-first searches for one vehicle over a fixed delivery set
// with the zones active at a single reference time.
type Router struct {
	vehicle    model.Vehicle
	deliveries []model.DeliveryPoint
	active     []model.NoFlyZone
	at         model.TimeOfDay
}

// NewRouter snapshots its inputs; later changes by the caller are not seen.
func NewRouter(v model.Vehicle, deliveries []model.DeliveryPoint, zones []model.NoFlyZone, at model.TimeOfDay) *Router {
	return &Router{
		vehicle:    v,
		deliveries: append([]model.DeliveryPoint(nil), deliveries...),
		active:     model.ActiveZones(zones, at),
		at:         at,
	}
}

// StartPoint is the virtual delivery at the vehicle's start position.
func (r *Router) StartPoint() model.DeliveryPoint {
	return model.DeliveryPoint{ID: startID, Position: r.vehicle.Start, Priority: model.MinPriority, Window: model.AllDay}
}

// Heuristic estimates the remaining cost from p to goal.
func (r *Router) Heuristic(p, goal geom.Point) float64 {
	h := geom.Distance(p, goal)
	for _, z := range r.active {
		if z.Crosses(p, goal) {
			h += zonePenalty
		}
	}
	return h
}

type searchNode struct {
	point  model.DeliveryPoint
	g, h   float64
	f      float64
	parent int
	index  int // position in the heap, -1 once popped
}

// openSet is a min-heap of arena indices ordered by f ascending, then
// priority descending, then insertion order.
type openSet struct {
	arena *[]searchNode
	items []int
}

func (o *openSet) Len() int { return len(o.items) }

func (o *openSet) Less(i, j int) bool {
	a, b := &(*o.arena)[o.items[i]], &(*o.arena)[o.items[j]]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.point.Priority != b.point.Priority {
		return a.point.Priority > b.point.Priority
	}
	return o.items[i] < o.items[j]
}

func (o *openSet) Swap(i, j int) {
	o.items[i], o.items[j] = o.items[j], o.items[i]
	(*o.arena)[o.items[i]].index = i
	(*o.arena)[o.items[j]].index = j
}

func (o *openSet) Push(x any) {
	n := x.(int)
	(*o.arena)[n].index = len(o.items)
	o.items = append(o.items, n)
}

func (o *openSet) Pop() any {
	last := len(o.items) - 1
	n := o.items[last]
	o.items = o.items[:last]
	(*o.arena)[n].index = -1
	return n
}

// FindRoute searches from start to goal, or across every delivery when goal
// is nil. The returned path excludes start. An empty path means no route.
func (r *Router) FindRoute(start model.DeliveryPoint, goal *model.DeliveryPoint) []model.DeliveryPoint {
	h0 := 0.0
	if goal != nil {
		h0 = r.Heuristic(start.Position, goal.Position)
	}
	arena := []searchNode{{point: start, g: 0, h: h0, f: h0, parent: -1}}
	open := &openSet{arena: &arena}
	heap.Push(open, 0)
	openByID := map[int]int{start.ID: 0}
	closed := map[int]bool{}

	known := make(map[int]bool, len(r.deliveries))
	for _, d := range r.deliveries {
		known[d.ID] = true
	}
	covered := 0

	for open.Len() > 0 {
		cur := heap.Pop(open).(int)
		node := arena[cur]
		delete(openByID, node.point.ID)
		if !closed[node.point.ID] {
			closed[node.point.ID] = true
			if known[node.point.ID] {
				covered++
			}
		}

		if goal != nil && node.point.ID == goal.ID {
			return reconstruct(arena, cur)
		}
		if goal == nil && covered == len(r.deliveries) {
			return reconstruct(arena, cur)
		}

		for _, nb := range r.neighbors(node.point, closed) {
			g := node.g + EdgeCost(node.point.Position, nb)
			if idx, ok := openByID[nb.ID]; ok {
				if g < arena[idx].g {
					arena[idx].g = g
					arena[idx].f = g + arena[idx].h
					arena[idx].parent = cur
					heap.Fix(open, arena[idx].index)
				}
				continue
			}
			h := 0.0
			if goal != nil {
				h = r.Heuristic(nb.Position, goal.Position)
			}
			arena = append(arena, searchNode{point: nb, g: g, h: h, f: g + h, parent: cur})
			idx := len(arena) - 1
			heap.Push(open, idx)
			openByID[nb.ID] = idx
		}
	}
	return nil
}

// neighbors lists the deliveries reachable in one hop from p.
func (r *Router) neighbors(p model.DeliveryPoint, closed map[int]bool) []model.DeliveryPoint {
	var out []model.DeliveryPoint
	for _, d := range r.deliveries {
		if closed[d.ID] || d.ID == p.ID {
			continue
		}
		if !r.vehicle.CanCarry(d.Mass) {
			continue
		}
		if !model.PathClear(r.active, p.Position, d.Position) {
			continue
		}
		if !r.vehicle.HasEnergyFor(geom.Distance(p.Position, d.Position), d.Mass) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func reconstruct(arena []searchNode, last int) []model.DeliveryPoint {
	var path []model.DeliveryPoint
	for i := last; i >= 0 && arena[i].parent >= 0; i = arena[i].parent {
		path = append(path, arena[i].point)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// routeCost sums edge costs along path starting at from.
func routeCost(from geom.Point, path []model.DeliveryPoint) float64 {
	total := 0.0
	for _, d := range path {
		total += EdgeCost(from, d)
		from = d.Position
	}
	return total
}

// FindAllRoutes repeatedly picks the cheapest single-goal route to an
// unvisited delivery, scoring each candidate by its path cost minus the
// target's priority bonus, and continues from that route's end. It stops
// when every delivery is visited or none is reachable.
func (r *Router) FindAllRoutes() [][]model.DeliveryPoint {
	ordered := append([]model.DeliveryPoint(nil), r.deliveries...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	cur := r.StartPoint()
	visited := map[int]bool{}
	var routes [][]model.DeliveryPoint
	for len(visited) < len(ordered) {
		var best []model.DeliveryPoint
		bestScore := math.Inf(1)
		for i := range ordered {
			target := ordered[i]
			if visited[target.ID] {
				continue
			}
			path := r.FindRoute(cur, &target)
			if len(path) == 0 {
				continue
			}
			score := routeCost(cur.Position, path) - priorityBonus(target.Priority)
			if score < bestScore {
				bestScore = score
				best = path
			}
		}
		if best == nil {
			break
		}
		routes = append(routes, best)
		cur = best[len(best)-1]
		visited[cur.ID] = true
	}
	return routes
}
