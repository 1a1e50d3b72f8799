package engine

import (
	"math"
	"math/rand"
	"sort"

	"github.com/piwi3910/ReelCut/internal/model"
)

// EvolveConfig holds parameters for the evolutionary set search.
type EvolveConfig struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
	TournamentSize int
	EliteCount     int
	// MaxUnits is the largest number of new-material cuts searched; bigger
	// groups keep the best-fit packing.
	MaxUnits int
}

// DefaultEvolveConfig returns the parameters used by Pack when
// Settings.Evolve is set.
func DefaultEvolveConfig() EvolveConfig {
	return EvolveConfig{
		PopulationSize: 50,
		Generations:    100,
		MutationRate:   0.15,
		TournamentSize: 3,
		EliteCount:     2,
		MaxUnits:       300,
	}
}

// scaledEvolveConfig gives larger groups more generations and a bigger
// population.
func scaledEvolveConfig(units int) EvolveConfig {
	config := DefaultEvolveConfig()
	if units > 20 {
		config.Generations = 150
	}
	if units > 50 {
		config.Generations = 200
		config.PopulationSize = 80
	}
	return config
}

// evolveSeed fixes the search so the same input always yields the same sets.
const evolveSeed = 42

// packScore ranks a packing: fewer sets first, then fuller sets. fill is the
// sum of squared fill ratios, which rewards concentrating waste in few sets.
type packScore struct {
	sets int
	fill float64
}

func (a packScore) better(b packScore) bool {
	if a.sets != b.sets {
		return a.sets < b.sets
	}
	return a.fill > b.fill+1e-9
}

func scoreSets(sets []model.Set) packScore {
	s := packScore{sets: len(sets)}
	for _, set := range sets {
		r := set.UsedWidth() / set.TargetWidth
		s.fill += r * r
	}
	return s
}

// chromosome is an order in which cuts are fed to a first-fit set filler.
type chromosome struct {
	order []int
	score packScore
}

type setEvolver struct {
	cuts    []model.Cut
	target  float64
	epsilon float64
	config  EvolveConfig
	minSets int // no packing uses fewer sets
	rng     *rand.Rand
}

// evolveSets searches cut orders for a first-fit packing that beats the
// given sets. It returns the best packing found and whether it improves on
// baseline. cuts must be in the order the best-fit packer received them.
func evolveSets(cuts []model.Cut, baseline []model.Set, target, epsilon float64, config EvolveConfig) ([]model.Set, bool) {
	n := len(cuts)
	if n < 2 || n > config.MaxUnits || config.PopulationSize <= 0 {
		return baseline, false
	}
	var total float64
	for _, c := range cuts {
		total += c.Width
	}

	e := &setEvolver{
		cuts:    cuts,
		target:  target,
		epsilon: epsilon,
		config:  config,
		minSets: int(math.Ceil(total / (target + epsilon))),
		rng:     rand.New(rand.NewSource(evolveSeed)),
	}
	best := e.run()
	sets := e.decode(best.order)
	if !scoreSets(sets).better(scoreSets(baseline)) {
		return baseline, false
	}
	return sets, true
}

func (e *setEvolver) run() chromosome {
	population := e.initPopulation()
	for i := range population {
		population[i].score = e.evaluate(population[i].order)
	}

	for gen := 0; gen < e.config.Generations; gen++ {
		e.rank(population)
		if population[0].score.sets <= e.minSets {
			break
		}

		next := make([]chromosome, 0, e.config.PopulationSize)
		elite := min(e.config.EliteCount, len(population))
		for i := 0; i < elite; i++ {
			next = append(next, population[i].clone())
		}
		for len(next) < e.config.PopulationSize {
			child := e.orderCrossover(e.tournament(population), e.tournament(population))
			e.mutate(&child)
			child.score = e.evaluate(child.order)
			next = append(next, child)
		}
		population = next
	}

	e.rank(population)
	return population[0]
}

// initPopulation seeds one chromosome with the decreasing order the greedy
// packer uses and fills the rest with random permutations.
func (e *setEvolver) initPopulation() []chromosome {
	n := len(e.cuts)
	population := make([]chromosome, e.config.PopulationSize)
	for i := range population {
		population[i] = chromosome{order: e.rng.Perm(n)}
	}
	greedy := make([]int, n)
	for i := range greedy {
		greedy[i] = i
	}
	population[0] = chromosome{order: greedy}
	return population
}

func (e *setEvolver) rank(population []chromosome) {
	sort.SliceStable(population, func(i, j int) bool {
		return population[i].score.better(population[j].score)
	})
}

func (e *setEvolver) evaluate(order []int) packScore {
	return scoreSets(e.decode(order))
}

// decode fills sets first fit in chromosome order.
func (e *setEvolver) decode(order []int) []model.Set {
	var (
		sets []model.Set
		used []float64
	)
	for _, idx := range order {
		c := e.cuts[idx]
		placed := false
		for i := range sets {
			if model.FitsWidth(used[i], c.Width, e.target, e.epsilon) {
				sets[i].Cuts = append(sets[i].Cuts, c)
				used[i] += c.Width
				placed = true
				break
			}
		}
		if !placed {
			sets = append(sets, model.Set{TargetWidth: e.target, Cuts: []model.Cut{c}})
			used = append(used, c.Width)
		}
	}
	return sets
}

func (e *setEvolver) tournament(population []chromosome) chromosome {
	best := population[e.rng.Intn(len(population))]
	for i := 1; i < e.config.TournamentSize; i++ {
		candidate := population[e.rng.Intn(len(population))]
		if candidate.score.better(best.score) {
			best = candidate
		}
	}
	return best.clone()
}

// orderCrossover (OX1) keeps a slice of the first parent and fills the rest
// in the second parent's order.
func (e *setEvolver) orderCrossover(p1, p2 chromosome) chromosome {
	n := len(p1.order)
	if n <= 2 {
		return p1.clone()
	}
	lo, hi := e.rng.Intn(n), e.rng.Intn(n)
	if lo > hi {
		lo, hi = hi, lo
	}

	child := chromosome{order: make([]int, n)}
	taken := make([]bool, n)
	for i := lo; i <= hi; i++ {
		child.order[i] = p1.order[i]
		taken[p1.order[i]] = true
	}
	pos := (hi + 1) % n
	for _, g := range p2.order {
		if !taken[g] {
			child.order[pos] = g
			pos = (pos + 1) % n
		}
	}
	return child
}

func (e *setEvolver) mutate(c *chromosome) {
	n := len(c.order)
	if n < 2 {
		return
	}
	if e.rng.Float64() < e.config.MutationRate {
		i, j := e.rng.Intn(n), e.rng.Intn(n)
		c.order[i], c.order[j] = c.order[j], c.order[i]
	}
	// Inversion, half as often.
	if e.rng.Float64() < e.config.MutationRate*0.5 {
		i, j := e.rng.Intn(n), e.rng.Intn(n)
		if i > j {
			i, j = j, i
		}
		for ; i < j; i, j = i+1, j-1 {
			c.order[i], c.order[j] = c.order[j], c.order[i]
		}
	}
}

func (c chromosome) clone() chromosome {
	return chromosome{order: append([]int(nil), c.order...), score: c.score}
}
