package engine

import "github.com/piwi3910/ReelCut/internal/model"

// StatusSuccess is the status reported on a completed planning call.
const StatusSuccess = "success"

// groupOutput is the packed and assembled plan for one spec group.
type groupOutput struct {
	spec   model.PaperSpec
	reqIDs []string
	packed PackResult
	jumbos []model.Jumbo
}

// RecomputeSummary derives every Summary field from the suggestion's current
// jumbos, sets and cuts. It has no side effects and is idempotent.
func RecomputeSummary(s model.Suggestion) model.Summary {
	var sum model.Summary
	sum.RollsFromExisting = len(s.ExistingCuts)
	sum.TotalJumbos = len(s.Jumbos)
	for _, j := range s.Jumbos {
		if j.Partial() {
			sum.PartialJumbos++
		}
		for _, set := range j.Sets {
			sum.TotalSets++
			sum.NewRollsNeeded += len(set.Cuts)
			sum.UsedWidth += set.UsedWidth()
			sum.ProducedWidth += set.TargetWidth
			sum.TotalWaste += set.Waste()
		}
	}
	sum.TotalRolls = sum.RollsFromExisting + sum.NewRollsNeeded
	return finishSummary(sum)
}

// finishSummary fills the derived averages from the totals.
func finishSummary(sum model.Summary) model.Summary {
	sum.AverageWaste = 0
	if sum.TotalSets > 0 {
		sum.AverageWaste = sum.TotalWaste / float64(sum.TotalSets)
	}
	sum.Efficiency = 0
	if sum.ProducedWidth > 0 {
		sum.Efficiency = sum.UsedWidth / sum.ProducedWidth
	}
	return sum
}

// MergeSummaries rolls several summaries up into one.
func MergeSummaries(parts ...model.Summary) model.Summary {
	var sum model.Summary
	for _, p := range parts {
		sum.TotalRolls += p.TotalRolls
		sum.RollsFromExisting += p.RollsFromExisting
		sum.NewRollsNeeded += p.NewRollsNeeded
		sum.TotalSets += p.TotalSets
		sum.TotalJumbos += p.TotalJumbos
		sum.PartialJumbos += p.PartialJumbos
		sum.UsedWidth += p.UsedWidth
		sum.ProducedWidth += p.ProducedWidth
		sum.TotalWaste += p.TotalWaste
	}
	return finishSummary(sum)
}

// aggregate assembles the public result from per-group outputs. It makes no
// packing decisions.
func aggregate(outputs []groupOutput, targetWidth float64) model.Result {
	result := model.Result{
		Status:      StatusSuccess,
		TargetWidth: targetWidth,
		Suggestions: make([]model.Suggestion, 0, len(outputs)),
	}
	summaries := make([]model.Summary, 0, len(outputs))
	for _, g := range outputs {
		s := model.Suggestion{
			Spec:           g.spec,
			TargetWidth:    targetWidth,
			Jumbos:         g.jumbos,
			ExistingCuts:   g.packed.ExistingCuts,
			Consumptions:   g.packed.Consumptions,
			RequirementIDs: g.reqIDs,
			Version:        1,
		}
		if s.Jumbos == nil {
			s.Jumbos = []model.Jumbo{}
		}
		if s.ExistingCuts == nil {
			s.ExistingCuts = []model.Cut{}
		}
		if s.Consumptions == nil {
			s.Consumptions = []model.StockConsumption{}
		}
		s.Summary = RecomputeSummary(s)
		summaries = append(summaries, s.Summary)
		result.Suggestions = append(result.Suggestions, s)
	}
	result.Summary = MergeSummaries(summaries...)
	return result
}

// assignIDs walks the result in a fixed order so a deterministic generator
// yields identical ids for identical input.
func assignIDs(result *model.Result, ids model.IDGenerator) {
	for si := range result.Suggestions {
		s := &result.Suggestions[si]
		s.ID = ids.NewID("sug")
		for ci := range s.ExistingCuts {
			id := ids.NewID("cut")
			s.ExistingCuts[ci].ID = id
			s.Consumptions[ci].CutID = id
		}
		for ji := range s.Jumbos {
			j := &s.Jumbos[ji]
			j.ID = ids.NewID("jumbo")
			for ki := range j.Sets {
				set := &j.Sets[ki]
				set.ID = ids.NewID("set")
				for ci := range set.Cuts {
					set.Cuts[ci].ID = ids.NewID("cut")
				}
			}
		}
	}
}
