package engine

import (
	"fmt"
	"sort"

	"github.com/piwi3910/ReelCut/internal/model"
)

// PackResult is the Width Packer's output for one spec group. Cuts and sets
// carry no ids yet; ExistingCuts[i] corresponds to Consumptions[i].
type PackResult struct {
	Sets         []model.Set
	ExistingCuts []model.Cut
	Consumptions []model.StockConsumption
}

// PlacedWidth is the total width of every cut in the result.
func (p PackResult) PlacedWidth() float64 {
	var total float64
	for _, s := range p.Sets {
		total += s.UsedWidth()
	}
	for _, c := range p.ExistingCuts {
		total += c.Width
	}
	return total
}

// CheckWidths returns a PackingError for the first requirement wider than the
// target width.
func CheckWidths(reqs []model.PendingRequirement, settings model.Settings) error {
	settings = settings.Normalized()
	for _, r := range reqs {
		if !model.FitsWidth(0, r.Width, settings.TargetWidth, settings.Epsilon) {
			return &model.PackingError{
				Kind:          model.RequirementTooWide,
				RequirementID: r.ID,
				Width:         r.Width,
				TargetWidth:   settings.TargetWidth,
			}
		}
	}
	return nil
}

// Pack places every unit of the requirements, preferring existing stock rolls
// and otherwise filling sets of the target width with a best-fit decreasing
// heuristic. With Settings.Evolve the new-material sets are then searched
// for a packing with fewer or fuller sets, which replaces the best-fit one
// only when it is strictly better. The stock slice must already be filtered
// to the requirements' spec. Empty input yields an empty result.
func Pack(reqs []model.PendingRequirement, stock []model.ExistingStockRoll, settings model.Settings) (PackResult, error) {
	settings = settings.Normalized()
	if err := CheckWidths(reqs, settings); err != nil {
		return PackResult{}, err
	}

	sorted := append([]model.PendingRequirement(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Width != b.Width {
			return a.Width > b.Width
		}
		if a.OrderID != b.OrderID {
			return a.OrderID < b.OrderID
		}
		return a.ID < b.ID
	})

	pool := newStockPool(stock, settings)
	packer := newWidthPacker(settings.TargetWidth, settings.Epsilon)
	var (
		result PackResult
		fresh  []model.Cut
	)

	for _, r := range sorted {
		for n := 0; n < r.Quantity; n++ {
			if roll, ok := pool.take(r.Width); ok {
				result.ExistingCuts = append(result.ExistingCuts, model.Cut{
					Width:         r.Width,
					RequirementID: r.ID,
					OrderID:       r.OrderID,
					UsesExisting:  true,
					SourceRollID:  roll.ID,
					Description:   fmt.Sprintf("%.2f\" from stock roll %s", r.Width, roll.ID),
				})
				remainder := roll.Width - r.Width
				if remainder < 0 {
					remainder = 0
				}
				result.Consumptions = append(result.Consumptions, model.StockConsumption{
					RollID:        roll.ID,
					RequirementID: r.ID,
					WidthUsed:     r.Width,
					Remainder:     remainder,
				})
				continue
			}
			cut := model.Cut{
				Width:         r.Width,
				RequirementID: r.ID,
				OrderID:       r.OrderID,
				Description:   fmt.Sprintf("%.2f\" for order %s", r.Width, r.OrderID),
			}
			packer.insert(cut)
			fresh = append(fresh, cut)
		}
	}

	result.Sets = packer.sets()
	if settings.Evolve {
		result.Sets, _ = evolveSets(fresh, result.Sets, settings.TargetWidth, settings.Epsilon, scaledEvolveConfig(len(fresh)))
	}
	return result, nil
}

// stockPool hands out existing rolls, each at most once per run.
type stockPool struct {
	rolls      []model.ExistingStockRoll
	used       []bool
	epsilon    float64
	maxOverrun float64
}

func newStockPool(stock []model.ExistingStockRoll, settings model.Settings) *stockPool {
	rolls := make([]model.ExistingStockRoll, 0, len(stock))
	for _, r := range stock {
		if r.Width > 0 {
			rolls = append(rolls, r)
		}
	}
	// Narrowest first so take() returns the tightest fit.
	sort.SliceStable(rolls, func(i, j int) bool {
		if rolls[i].Width != rolls[j].Width {
			return rolls[i].Width < rolls[j].Width
		}
		return rolls[i].ID < rolls[j].ID
	})
	return &stockPool{
		rolls:      rolls,
		used:       make([]bool, len(rolls)),
		epsilon:    settings.Epsilon,
		maxOverrun: settings.MaxStockOverrun,
	}
}

// take retires and returns the narrowest unused roll that can supply width.
func (p *stockPool) take(width float64) (model.ExistingStockRoll, bool) {
	for i, r := range p.rolls {
		if p.used[i] || !model.FitsWidth(0, width, r.Width, p.epsilon) {
			continue
		}
		if p.maxOverrun > 0 && r.Width-width > p.maxOverrun+p.epsilon {
			// Rolls are sorted by width, every later roll overruns more.
			break
		}
		p.used[i] = true
		return r, true
	}
	return model.ExistingStockRoll{}, false
}

// widthPacker fills fixed-width sets using best fit: each cut goes to the
// open set with the least remaining room that still fits it.
type widthPacker struct {
	target  float64
	epsilon float64
	open    []model.Set
	used    []float64
}

func newWidthPacker(target, epsilon float64) *widthPacker {
	return &widthPacker{target: target, epsilon: epsilon}
}

func (wp *widthPacker) insert(c model.Cut) {
	best := wp.bestFit(c.Width)
	if best < 0 {
		wp.open = append(wp.open, model.Set{TargetWidth: wp.target})
		wp.used = append(wp.used, 0)
		best = len(wp.open) - 1
	}
	wp.open[best].Cuts = append(wp.open[best].Cuts, c)
	wp.used[best] += c.Width
}

// bestFit returns the index of the tightest open set for width, or -1.
func (wp *widthPacker) bestFit(width float64) int {
	bestIdx := -1
	bestRemaining := 0.0
	for i := range wp.open {
		if !model.FitsWidth(wp.used[i], width, wp.target, wp.epsilon) {
			continue
		}
		remaining := wp.target - wp.used[i]
		if bestIdx < 0 || remaining < bestRemaining {
			bestIdx = i
			bestRemaining = remaining
		}
	}
	return bestIdx
}

func (wp *widthPacker) sets() []model.Set {
	return wp.open
}
