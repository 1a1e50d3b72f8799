package model

import "sort"

// MinRemnantWidth is the narrowest leftover (in inches) worth returning to
// stock. Anything narrower is trim waste.
const MinRemnantWidth = 10.0

// Remnant converts the unused part of a consumed roll back into available
// stock. The second return value is false when the leftover is too narrow.
func (c StockConsumption) Remnant(spec PaperSpec) (ExistingStockRoll, bool) {
	if c.Remainder < MinRemnantWidth {
		return ExistingStockRoll{}, false
	}
	return ExistingStockRoll{
		ID:     c.RollID + "-r",
		Width:  c.Remainder,
		Spec:   spec.Normalize(),
		Source: "remnant of " + c.RollID,
	}, true
}

// DetectRemnants lists the reusable leftovers a suggestion would create,
// widest first.
func DetectRemnants(s Suggestion) []ExistingStockRoll {
	var out []ExistingStockRoll
	for _, c := range s.Consumptions {
		if r, ok := c.Remnant(s.Spec); ok {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Width > out[j].Width
	})
	return out
}

// TotalRemnantWidth sums the widths of the given rolls.
func TotalRemnantWidth(rolls []ExistingStockRoll) float64 {
	var total float64
	for _, r := range rolls {
		total += r.Width
	}
	return total
}
