package opt

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"dronenav/internal/geom"
	"dronenav/internal/model"
)

// Chromosome maps a vehicle id to its ordered delivery ids. Across all
// vehicles every delivery id appears exactly once.
type Chromosome map[int][]int

func (c Chromosome) Clone() Chromosome {
	out := make(Chromosome, len(c))
	for k, v := range c {
		out[k] = append([]int{}, v...)
	}
	return out
}

// GeneticConfig tunes the population search. Zero sizes and rates take the
// DefaultGeneticConfig values; seed 0 seeds from the clock.
type GeneticConfig struct {
	Population    int
	Generations   int
	CrossoverRate float64
	MutationRate  float64
	Seed          int64
	// Workers > 1 evaluates fitness in parallel. Results are identical.
	Workers int
}

func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{Population: 50, Generations: 100, CrossoverRate: 0.8, MutationRate: 0.2}
}

// GeneticStats describes the best chromosome found.
type GeneticStats struct {
	TotalDeliveries int     `json:"totalDeliveries"`
	TotalEnergy     float64 `json:"totalEnergy"`
	TotalViolations int     `json:"totalViolations"`
	Fitness         float64 `json:"fitness"`
}

// GenerationReport is passed to the progress hook after every generation.
type GenerationReport struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"bestFitness"`
	MeanFitness float64 `json:"meanFitness"`
}

type GeneticOption func(*Genetic)

// WithProgress registers a hook called after each generation.
func WithProgress(fn func(GenerationReport)) GeneticOption {
	return func(g *Genetic) { g.onGeneration = fn }
}

// WithRand replaces the seeded source, mostly for tests.
func WithRand(rng *rand.Rand) GeneticOption {
	return func(g *Genetic) { g.rng = rng }
}

type individual struct {
	genes   Chromosome
	fitness float64
	scored  bool
}

func (in *individual) clone() *individual {
	return &individual{genes: in.genes.Clone(), fitness: in.fitness, scored: in.scored}
}

// Genetic evolves whole-fleet assignments. It is not safe for concurrent use.
type Genetic struct {
	cfg         GeneticConfig
	rng         *rand.Rand
	vehicleIDs  []int
	deliveryIDs []int
	vehicles    map[int]model.Vehicle
	deliveries  map[int]model.DeliveryPoint
	active      []model.NoFlyZone

	best         *individual
	onGeneration func(GenerationReport)
}

func NewGenetic(vehicles []model.Vehicle, deliveries []model.DeliveryPoint, zones []model.NoFlyZone, at model.TimeOfDay, cfg GeneticConfig, opts ...GeneticOption) *Genetic {
	def := DefaultGeneticConfig()
	if cfg.Population <= 0 {
		cfg.Population = def.Population
	}
	if cfg.Generations <= 0 {
		cfg.Generations = def.Generations
	}
	if cfg.CrossoverRate <= 0 {
		cfg.CrossoverRate = def.CrossoverRate
	}
	if cfg.MutationRate <= 0 {
		cfg.MutationRate = def.MutationRate
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Genetic{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(seed)),
		vehicles:   make(map[int]model.Vehicle, len(vehicles)),
		deliveries: make(map[int]model.DeliveryPoint, len(deliveries)),
		active:     model.ActiveZones(zones, at),
	}
	for _, v := range vehicles {
		g.vehicleIDs = append(g.vehicleIDs, v.ID)
		g.vehicles[v.ID] = v
	}
	sort.Ints(g.vehicleIDs)
	for _, d := range deliveries {
		g.deliveryIDs = append(g.deliveryIDs, d.ID)
		g.deliveries[d.ID] = d
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// evaluate walks every route from its vehicle's start. Energy is never
// floored, so an overdrawn route keeps accruing violations.
func (g *Genetic) evaluate(c Chromosome) GeneticStats {
	var st GeneticStats
	for _, vid := range g.vehicleIDs {
		v := g.vehicles[vid]
		pos := v.Start
		remaining := v.EnergyCapacity
		for _, id := range c[vid] {
			d := g.deliveries[id]
			st.TotalDeliveries++
			if d.Mass > v.MaxPayload {
				st.TotalViolations++
			}
			if !model.PathClear(g.active, pos, d.Position) {
				st.TotalViolations++
			}
			cost := model.EnergyCost(geom.Distance(pos, d.Position), d.Mass)
			if cost > remaining {
				st.TotalViolations++
			}
			remaining -= cost
			st.TotalEnergy += float64(cost)
			pos = d.Position
		}
	}
	st.Fitness = float64(st.TotalDeliveries)*100 - st.TotalEnergy*0.5 - float64(st.TotalViolations)*2000
	return st
}

// Fitness scores c against the scenario. It has no side effects.
func (g *Genetic) Fitness(c Chromosome) float64 { return g.evaluate(c).Fitness }

// score fills in fitness for every unscored individual.
func (g *Genetic) score(ctx context.Context, pop []*individual) error {
	if g.cfg.Workers <= 1 {
		for _, in := range pop {
			if !in.scored {
				in.fitness, in.scored = g.Fitness(in.genes), true
			}
		}
		return nil
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for _, in := range pop {
		if in.scored {
			continue
		}
		in := in
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			in.fitness, in.scored = g.Fitness(in.genes), true
			return nil
		})
	}
	return eg.Wait()
}

func (g *Genetic) emptyChromosome() Chromosome {
	c := make(Chromosome, len(g.vehicleIDs))
	for _, vid := range g.vehicleIDs {
		c[vid] = []int{}
	}
	return c
}

func (g *Genetic) randomIndividual() *individual {
	ids := append([]int(nil), g.deliveryIDs...)
	g.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	c := g.emptyChromosome()
	for _, id := range ids {
		vid := g.vehicleIDs[g.rng.Intn(len(g.vehicleIDs))]
		c[vid] = append(c[vid], id)
	}
	for _, vid := range g.vehicleIDs {
		r := c[vid]
		g.rng.Shuffle(len(r), func(i, j int) { r[i], r[j] = r[j], r[i] })
	}
	return &individual{genes: c}
}

// tournament samples without replacement and keeps the fittest.
func (g *Genetic) tournament(pop []*individual) *individual {
	k := max(2, len(pop)/5)
	if k > len(pop) {
		k = len(pop)
	}
	var best *individual
	for _, i := range g.rng.Perm(len(pop))[:k] {
		if best == nil || pop[i].fitness > best.fitness {
			best = pop[i]
		}
	}
	return best
}

// Crossover recombines two parents route by route and repairs the children.
func (g *Genetic) crossover(a, b *individual) (*individual, *individual) {
	if g.rng.Float64() > g.cfg.CrossoverRate {
		return a.clone(), b.clone()
	}
	c1, c2 := g.emptyChromosome(), g.emptyChromosome()
	for _, vid := range g.vehicleIDs {
		ra, rb := a.genes[vid], b.genes[vid]
		if len(ra) == 0 || len(rb) == 0 {
			c1[vid] = append([]int{}, ra...)
			c2[vid] = append([]int{}, rb...)
			continue
		}
		k := 1 + g.rng.Intn(min(len(ra), len(rb)))
		c1[vid] = prefixFill(ra[:k], rb)
		c2[vid] = prefixFill(rb[:k], ra)
	}
	g.repair(c1)
	g.repair(c2)
	return &individual{genes: c1}, &individual{genes: c2}
}

// prefixFill returns prefix followed by the items of rest not in prefix.
func prefixFill(prefix, rest []int) []int {
	in := make(map[int]bool, len(prefix))
	out := make([]int, 0, len(prefix)+len(rest))
	for _, id := range prefix {
		in[id] = true
		out = append(out, id)
	}
	for _, id := range rest {
		if !in[id] {
			out = append(out, id)
		}
	}
	return out
}

// repair keeps the first occurrence of each id scanning vehicles in id
// order, then appends every missing id to a random vehicle.
func (g *Genetic) repair(c Chromosome) {
	seen := make(map[int]bool, len(g.deliveryIDs))
	for _, vid := range g.vehicleIDs {
		kept := make([]int, 0, len(c[vid]))
		for _, id := range c[vid] {
			if !seen[id] {
				seen[id] = true
				kept = append(kept, id)
			}
		}
		c[vid] = kept
	}
	for _, id := range g.deliveryIDs {
		if !seen[id] {
			vid := g.vehicleIDs[g.rng.Intn(len(g.vehicleIDs))]
			c[vid] = append(c[vid], id)
		}
	}
}

// mutate either relocates one delivery to another vehicle or swaps two
// stops within a route.
func (g *Genetic) mutate(in *individual) *individual {
	if g.rng.Float64() > g.cfg.MutationRate {
		return in
	}
	out := &individual{genes: in.genes.Clone()}
	if g.rng.Float64() < 0.5 && len(g.vehicleIDs) > 1 {
		g.relocate(out.genes)
	} else {
		g.reorder(out.genes)
	}
	return out
}

func (g *Genetic) relocate(c Chromosome) {
	var sources []int
	for _, vid := range g.vehicleIDs {
		if len(c[vid]) > 0 {
			sources = append(sources, vid)
		}
	}
	if len(sources) == 0 {
		return
	}
	src := sources[g.rng.Intn(len(sources))]
	i := g.rng.Intn(len(c[src]))
	id := c[src][i]
	c[src] = append(c[src][:i:i], c[src][i+1:]...)

	others := make([]int, 0, len(g.vehicleIDs)-1)
	for _, vid := range g.vehicleIDs {
		if vid != src {
			others = append(others, vid)
		}
	}
	dst := others[g.rng.Intn(len(others))]
	c[dst] = append(c[dst], id)
}

func (g *Genetic) reorder(c Chromosome) {
	var candidates []int
	for _, vid := range g.vehicleIDs {
		if len(c[vid]) >= 2 {
			candidates = append(candidates, vid)
		}
	}
	if len(candidates) == 0 {
		return
	}
	r := c[candidates[g.rng.Intn(len(candidates))]]
	i := g.rng.Intn(len(r))
	j := g.rng.Intn(len(r) - 1)
	if j >= i {
		j++
	}
	r[i], r[j] = r[j], r[i]
}

func fittest(pop []*individual) *individual {
	best := pop[0]
	for _, in := range pop[1:] {
		if in.fitness > best.fitness {
			best = in
		}
	}
	return best
}

// Evolve runs the configured number of generations and returns the best
// chromosome seen.
func (g *Genetic) Evolve() Chromosome {
	c, _ := g.EvolveContext(context.Background())
	return c
}

// EvolveContext is Evolve with cancellation checked between generations.
// On cancellation it returns the best chromosome so far and ctx.Err().
func (g *Genetic) EvolveContext(ctx context.Context) (Chromosome, error) {
	if len(g.vehicleIDs) == 0 {
		g.best = &individual{genes: Chromosome{}, scored: true}
		return Chromosome{}, nil
	}
	pop := make([]*individual, g.cfg.Population)
	for i := range pop {
		pop[i] = g.randomIndividual()
	}
	if err := g.score(ctx, pop); err != nil {
		return nil, err
	}
	g.best = fittest(pop).clone()

	for gen := 0; gen < g.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return g.best.genes.Clone(), err
		}
		next := make([]*individual, 0, g.cfg.Population+1)
		next = append(next, g.best.clone())
		for len(next) < g.cfg.Population {
			p1 := g.tournament(pop)
			p2 := g.tournament(pop)
			c1, c2 := g.crossover(p1, p2)
			next = append(next, g.mutate(c1), g.mutate(c2))
		}
		pop = next[:g.cfg.Population]
		if err := g.score(ctx, pop); err != nil {
			return g.best.genes.Clone(), err
		}
		if cur := fittest(pop); cur.fitness > g.best.fitness {
			g.best = cur.clone()
		}
		if g.onGeneration != nil {
			sum := 0.0
			for _, in := range pop {
				sum += in.fitness
			}
			g.onGeneration(GenerationReport{Generation: gen + 1, BestFitness: g.best.fitness, MeanFitness: sum / float64(len(pop))})
		}
	}
	return g.best.genes.Clone(), nil
}

// Best returns the best chromosome, or nil before Evolve.
func (g *Genetic) Best() Chromosome {
	if g.best == nil {
		return nil
	}
	return g.best.genes.Clone()
}

func (g *Genetic) Stats() GeneticStats {
	if g.best == nil {
		return GeneticStats{}
	}
	return g.evaluate(g.best.genes)
}

// Routes returns each vehicle's start followed by its delivery positions.
func (g *Genetic) Routes() map[int][]geom.Point {
	out := make(map[int][]geom.Point, len(g.vehicleIDs))
	for _, vid := range g.vehicleIDs {
		route := []geom.Point{g.vehicles[vid].Start}
		if g.best != nil {
			for _, id := range g.best.genes[vid] {
				route = append(route, g.deliveries[id].Position)
			}
		}
		out[vid] = route
	}
	return out
}
