package model

import "math"

// JumboEstimate is a lower bound on the material a set of requirements needs,
// ignoring existing stock and packing losses.
type JumboEstimate struct {
	TotalWidth      float64 `json:"total_width"`       // sum of width x quantity
	SetsNeededExact float64 `json:"sets_needed_exact"` // fractional sets
	SetsNeededMin   int     `json:"sets_needed_min"`
	JumbosNeededMin int     `json:"jumbos_needed_min"`
}

// EstimateJumbos computes how many sets and jumbos the requirements need at
// minimum for the given settings.
func EstimateJumbos(reqs []PendingRequirement, settings Settings) JumboEstimate {
	settings = settings.Normalized()

	var total float64
	for _, r := range reqs {
		total += r.TotalWidth()
	}

	exact := total / settings.TargetWidth
	// Subtract epsilon so 236.0000001 inches still counts as 2 sets.
	minSets := int(math.Ceil(exact - settings.Epsilon/settings.TargetWidth))
	if minSets < 0 {
		minSets = 0
	}
	minJumbos := (minSets + MaxSetsPerJumbo - 1) / MaxSetsPerJumbo

	return JumboEstimate{
		TotalWidth:      total,
		SetsNeededExact: exact,
		SetsNeededMin:   minSets,
		JumbosNeededMin: minJumbos,
	}
}
