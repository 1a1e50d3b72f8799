package engine

import (
	"fmt"

	"github.com/piwi3910/ReelCut/internal/model"
)

// ComparisonScenario is a named set of settings to try.
type ComparisonScenario struct {
	Name     string
	Settings model.Settings
}

// ComparisonResult holds the outcome of one scenario. Err is set when the
// scenario could not be planned, e.g. a requirement is wider than its set.
type ComparisonResult struct {
	Scenario     ComparisonScenario
	Result       model.Result
	Estimate     model.JumboEstimate
	SetsUsed     int
	JumbosUsed   int
	WastePercent float64
	Err          error
}

// CompareScenarios plans the same input under each scenario so an operator
// can decide whether a different set width cuts waste. Results keep the
// scenario order.
func CompareScenarios(scenarios []ComparisonScenario, reqs []model.PendingRequirement, stock []model.ExistingStockRoll) []ComparisonResult {
	results := make([]ComparisonResult, 0, len(scenarios))

	for _, scenario := range scenarios {
		cr := ComparisonResult{
			Scenario: scenario,
			Estimate: model.EstimateJumbos(reqs, scenario.Settings),
		}
		opt := New(scenario.Settings, model.NewSequenceGenerator())
		result, err := opt.GenerateSuggestions(reqs, stock)
		if err != nil {
			cr.Err = err
			results = append(results, cr)
			continue
		}
		cr.Result = result
		cr.SetsUsed = result.Summary.TotalSets
		cr.JumbosUsed = result.Summary.TotalJumbos
		if result.Summary.ProducedWidth > 0 {
			cr.WastePercent = 100.0 - result.Summary.EfficiencyPercent()
		}
		results = append(results, cr)
	}

	return results
}

// BuildWidthScenarios returns one scenario per candidate set width, starting
// with the base settings.
func BuildWidthScenarios(base model.Settings, widths []float64) []ComparisonScenario {
	base = base.Normalized()
	scenarios := []ComparisonScenario{{
		Name:     fmt.Sprintf("Current %.0f\"", base.TargetWidth),
		Settings: base,
	}}
	for _, w := range widths {
		if w <= 0 || w == base.TargetWidth {
			continue
		}
		alt := base
		alt.TargetWidth = w
		scenarios = append(scenarios, ComparisonScenario{
			Name:     fmt.Sprintf("Set width %.0f\"", w),
			Settings: alt,
		})
	}
	return scenarios
}

// WithEvolved appends an evolved variant of every scenario that does not
// already search for fewer sets.
func WithEvolved(scenarios []ComparisonScenario) []ComparisonScenario {
	out := append([]ComparisonScenario(nil), scenarios...)
	for _, sc := range scenarios {
		if sc.Settings.Evolve {
			continue
		}
		sc.Name += " evolved"
		sc.Settings.Evolve = true
		out = append(out, sc)
	}
	return out
}

// BestScenario returns the index of the successful scenario with the lowest
// waste percentage, or -1 if all failed. Ties keep the earlier scenario.
func BestScenario(results []ComparisonResult) int {
	best := -1
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		if best < 0 || r.WastePercent < results[best].WastePercent {
			best = i
		}
	}
	return best
}
