package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// round2 rounds for display. Internal figures stay unrounded.
func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

// FitsWidth reports whether a cut of width can join cuts totalling used
// without exceeding capacity by more than epsilon. The comparison is done in
// decimal so a total landing exactly on capacity+epsilon still fits.
func FitsWidth(used, width, capacity, epsilon float64) bool {
	total := decimal.NewFromFloat(used).Add(decimal.NewFromFloat(width)).Round(6)
	limit := decimal.NewFromFloat(capacity).Add(decimal.NewFromFloat(epsilon)).Round(6)
	return total.LessThanOrEqual(limit)
}

// SummaryView is the rounded, wire-facing form of a Summary.
type SummaryView struct {
	TotalRolls        int     `json:"total_rolls"`
	RollsFromExisting int     `json:"rolls_from_existing"`
	NewRollsNeeded    int     `json:"new_rolls_needed"`
	TotalSets         int     `json:"total_sets"`
	TotalJumbos       int     `json:"total_jumbos"`
	PartialJumbos     int     `json:"partial_jumbos"`
	TotalWaste        float64 `json:"total_waste"`
	AverageWaste      float64 `json:"average_waste"`
	EfficiencyPercent float64 `json:"efficiency_percent"`
}

func newSummaryView(s Summary) SummaryView {
	return SummaryView{
		TotalRolls:        s.TotalRolls,
		RollsFromExisting: s.RollsFromExisting,
		NewRollsNeeded:    s.NewRollsNeeded,
		TotalSets:         s.TotalSets,
		TotalJumbos:       s.TotalJumbos,
		PartialJumbos:     s.PartialJumbos,
		TotalWaste:        round2(s.TotalWaste),
		AverageWaste:      round2(s.AverageWaste),
		EfficiencyPercent: round2(s.EfficiencyPercent()),
	}
}

// CutView is a cut as shown to operators.
type CutView struct {
	ID            string  `json:"id"`
	Width         float64 `json:"width"`
	OrderID       string  `json:"order_id,omitempty"`
	RequirementID string  `json:"requirement_id,omitempty"`
	UsesExisting  bool    `json:"uses_existing"`
	SourceRollID  string  `json:"source_roll_id,omitempty"`
	Manual        bool    `json:"manual,omitempty"`
	Description   string  `json:"description,omitempty"`
}

func newCutView(c Cut) CutView {
	return CutView{
		ID:            c.ID,
		Width:         round2(c.Width),
		OrderID:       c.OrderID,
		RequirementID: c.RequirementID,
		UsesExisting:  c.UsesExisting,
		SourceRollID:  c.SourceRollID,
		Manual:        c.Manual,
		Description:   c.Description,
	}
}

// SetView is one 118" set with its cuts.
type SetView struct {
	ID                string    `json:"id"`
	UsedWidth         float64   `json:"used_width"`
	Waste             float64   `json:"waste"`
	EfficiencyPercent float64   `json:"efficiency_percent"`
	Cuts              []CutView `json:"cuts"`
}

// JumboView is one jumbo roll with its sets.
type JumboView struct {
	ID      string    `json:"id"`
	Partial bool      `json:"partial"`
	Waste   float64   `json:"waste"`
	Sets    []SetView `json:"sets"`
}

// SpecSuggestionView is the spec-first presentation of a suggestion.
type SpecSuggestionView struct {
	ID           string              `json:"id"`
	Version      int                 `json:"version"`
	Spec         PaperSpec           `json:"spec"`
	TargetWidth  float64             `json:"target_width"`
	Summary      SummaryView         `json:"summary"`
	JumboRolls   []JumboView         `json:"jumbo_rolls"`
	ExistingCuts []CutView           `json:"existing_cuts"`
	Remnants     []ExistingStockRoll `json:"remnants,omitempty"`
}

// SpecReport is the canonical wire shape: one entry per paper spec.
type SpecReport struct {
	Status          string               `json:"status"`
	Summary         SummaryView          `json:"summary"`
	SpecSuggestions []SpecSuggestionView `json:"spec_suggestions"`
}

// NewSpecSuggestionView renders a single suggestion.
func NewSpecSuggestionView(s Suggestion) SpecSuggestionView {
	v := SpecSuggestionView{
		ID:           s.ID,
		Version:      s.Version,
		Spec:         s.Spec,
		TargetWidth:  s.TargetWidth,
		Summary:      newSummaryView(s.Summary),
		JumboRolls:   make([]JumboView, 0, len(s.Jumbos)),
		ExistingCuts: make([]CutView, 0, len(s.ExistingCuts)),
		Remnants:     DetectRemnants(s),
	}
	for _, j := range s.Jumbos {
		jv := JumboView{ID: j.ID, Partial: j.Partial(), Waste: round2(j.Waste()), Sets: make([]SetView, 0, len(j.Sets))}
		for _, set := range j.Sets {
			sv := SetView{
				ID:                set.ID,
				UsedWidth:         round2(set.UsedWidth()),
				Waste:             round2(set.Waste()),
				EfficiencyPercent: round2(set.Efficiency() * 100),
				Cuts:              make([]CutView, 0, len(set.Cuts)),
			}
			for _, c := range set.Cuts {
				sv.Cuts = append(sv.Cuts, newCutView(c))
			}
			jv.Sets = append(jv.Sets, sv)
		}
		v.JumboRolls = append(v.JumboRolls, jv)
	}
	for _, c := range s.ExistingCuts {
		v.ExistingCuts = append(v.ExistingCuts, newCutView(c))
	}
	return v
}

// SpecView renders a result in the spec-first shape.
func SpecView(r Result) SpecReport {
	out := SpecReport{
		Status:          r.Status,
		Summary:         newSummaryView(r.Summary),
		SpecSuggestions: make([]SpecSuggestionView, 0, len(r.Suggestions)),
	}
	for _, s := range r.Suggestions {
		out.SpecSuggestions = append(out.SpecSuggestions, NewSpecSuggestionView(s))
	}
	return out
}

// OrderCutView locates a cut inside the plan for an order-first listing.
type OrderCutView struct {
	CutView
	SuggestionID string `json:"suggestion_id"`
	JumboID      string `json:"jumbo_id,omitempty"`
	SetID        string `json:"set_id,omitempty"`
}

// OrderSuggestionView groups every cut attributed to one order.
type OrderSuggestionView struct {
	OrderID           string         `json:"order_id"`
	Spec              PaperSpec      `json:"spec"`
	TotalRolls        int            `json:"total_rolls"`
	RollsFromExisting int            `json:"rolls_from_existing"`
	NewRollsNeeded    int            `json:"new_rolls_needed"`
	TotalWidth        float64        `json:"total_width"`
	Cuts              []OrderCutView `json:"cuts"`
}

// OrderReport is the legacy order-first shape.
type OrderReport struct {
	Status           string                `json:"status"`
	Summary          SummaryView           `json:"summary"`
	OrderSuggestions []OrderSuggestionView `json:"order_suggestions"`
}

// OrderView projects a result onto orders using each cut's back-reference.
// Operator cuts without an order are listed under an empty order id. An order
// spanning several specs yields one entry per spec.
func OrderView(r Result) OrderReport {
	type key struct {
		order string
		spec  string
	}
	byKey := make(map[key]*OrderSuggestionView)
	var keys []key

	add := func(s Suggestion, c Cut, jumboID, setID string) {
		k := key{order: c.OrderID, spec: s.Spec.Key()}
		v, ok := byKey[k]
		if !ok {
			v = &OrderSuggestionView{OrderID: c.OrderID, Spec: s.Spec}
			byKey[k] = v
			keys = append(keys, k)
		}
		v.TotalRolls++
		if c.UsesExisting {
			v.RollsFromExisting++
		} else {
			v.NewRollsNeeded++
		}
		v.TotalWidth += c.Width
		v.Cuts = append(v.Cuts, OrderCutView{
			CutView:      newCutView(c),
			SuggestionID: s.ID,
			JumboID:      jumboID,
			SetID:        setID,
		})
	}

	for _, s := range r.Suggestions {
		for _, c := range s.ExistingCuts {
			add(s, c, "", "")
		}
		for _, j := range s.Jumbos {
			for _, set := range j.Sets {
				for _, c := range set.Cuts {
					add(s, c, j.ID, set.ID)
				}
			}
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].order != keys[j].order {
			return keys[i].order < keys[j].order
		}
		return keys[i].spec < keys[j].spec
	})

	out := OrderReport{
		Status:           r.Status,
		Summary:          newSummaryView(r.Summary),
		OrderSuggestions: make([]OrderSuggestionView, 0, len(keys)),
	}
	for _, k := range keys {
		v := byKey[k]
		v.TotalWidth = round2(v.TotalWidth)
		out.OrderSuggestions = append(out.OrderSuggestions, *v)
	}
	return out
}
