package engine

import "github.com/piwi3910/ReelCut/internal/model"

// AssembleJumbos groups sets into jumbos in production order. Every jumbo but
// the last holds exactly model.MaxSetsPerJumbo sets; the last may be partial.
// Sets are never reordered, dropped or duplicated.
func AssembleJumbos(sets []model.Set) []model.Jumbo {
	const per = model.MaxSetsPerJumbo
	jumbos := make([]model.Jumbo, 0, (len(sets)+per-1)/per)
	for start := 0; start < len(sets); start += per {
		end := start + per
		if end > len(sets) {
			end = len(sets)
		}
		chunk := make([]model.Set, end-start)
		copy(chunk, sets[start:end])
		jumbos = append(jumbos, model.Jumbo{Sets: chunk})
	}
	return jumbos
}

// PartialJumbos returns the jumbos that still have room for a set.
func PartialJumbos(jumbos []model.Jumbo) []model.Jumbo {
	var out []model.Jumbo
	for _, j := range jumbos {
		if j.Partial() {
			out = append(out, j)
		}
	}
	return out
}
