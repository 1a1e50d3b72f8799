package engine

import "github.com/piwi3910/ReelCut/internal/model"

// specGroup holds the requirements and candidate stock for one paper spec.
type specGroup struct {
	spec  model.PaperSpec
	reqs  []model.PendingRequirement
	stock []model.ExistingStockRoll
}

// GroupBySpec partitions requirements by normalized paper spec. Groups are
// returned in order of first appearance and keep the input order inside each
// group.
func GroupBySpec(reqs []model.PendingRequirement) []SpecGroup {
	index := make(map[string]int)
	var groups []SpecGroup
	for _, r := range reqs {
		spec := r.Spec.Normalize()
		key := spec.Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, SpecGroup{Spec: spec})
		}
		groups[i].Requirements = append(groups[i].Requirements, r)
	}
	return groups
}

// SpecGroup is one entry of GroupBySpec's output.
type SpecGroup struct {
	Spec         model.PaperSpec
	Requirements []model.PendingRequirement
}

// buildGroups attaches to each spec group the stock rolls of the same spec.
// Every roll lands in at most one group, so groups never contend for stock.
func buildGroups(reqs []model.PendingRequirement, stock []model.ExistingStockRoll) []specGroup {
	grouped := GroupBySpec(reqs)
	index := make(map[string]int, len(grouped))
	groups := make([]specGroup, len(grouped))
	for i, g := range grouped {
		index[g.Spec.Key()] = i
		groups[i] = specGroup{spec: g.Spec, reqs: g.Requirements}
	}
	for _, roll := range stock {
		if i, ok := index[roll.Spec.Key()]; ok {
			groups[i].stock = append(groups[i].stock, roll)
		}
	}
	return groups
}
