package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// MaxSetsPerJumbo is the number of sets the slitter can take from one jumbo roll.
const MaxSetsPerJumbo = 3

// DefaultTargetWidth is the nominal set width in inches.
const DefaultTargetWidth = 118.0

// PaperSpec identifies a paper grade. Two requirements can share a set only
// when their specs are equal.
type PaperSpec struct {
	GSM   int     `json:"gsm"`
	BF    float64 `json:"bf"`
	Shade string  `json:"shade"`
}

// NewPaperSpec returns a spec with the shade trimmed and lower-cased so that
// "Natural" and "natural " group together.
func NewPaperSpec(gsm int, bf float64, shade string) PaperSpec {
	return PaperSpec{GSM: gsm, BF: bf, Shade: normalizeShade(shade)}
}

func normalizeShade(shade string) string {
	return strings.ToLower(strings.TrimSpace(shade))
}

// Normalize returns the spec with its shade normalized.
func (s PaperSpec) Normalize() PaperSpec {
	return NewPaperSpec(s.GSM, s.BF, s.Shade)
}

// Validate checks the spec fields.
func (s PaperSpec) Validate() error {
	switch {
	case s.GSM <= 0:
		return &InputError{Kind: InvalidSpec, Detail: fmt.Sprintf("gsm must be positive, got %d", s.GSM)}
	case s.BF <= 0:
		return &InputError{Kind: InvalidSpec, Detail: fmt.Sprintf("bf must be positive, got %g", s.BF)}
	case normalizeShade(s.Shade) == "":
		return &InputError{Kind: InvalidSpec, Detail: "shade must not be empty"}
	}
	return nil
}

// Key returns a stable string key for the normalized spec.
func (s PaperSpec) Key() string {
	n := s.Normalize()
	return strconv.Itoa(n.GSM) + "|" + strconv.FormatFloat(n.BF, 'f', -1, 64) + "|" + n.Shade
}

// Equal reports whether two specs are the same after normalization.
func (s PaperSpec) Equal(o PaperSpec) bool {
	return s.Key() == o.Key()
}

func (s PaperSpec) String() string {
	n := s.Normalize()
	return fmt.Sprintf("%dgsm/%gbf/%s", n.GSM, n.BF, n.Shade)
}

// ExistingStockRoll is a partially used roll held by inventory. The optimizer
// only reads it; consumption is reported back as a StockConsumption.
type ExistingStockRoll struct {
	ID     string    `json:"id"`
	Width  float64   `json:"width"` // inches remaining
	Spec   PaperSpec `json:"spec"`
	Source string    `json:"source,omitempty"`
}

// StockConsumption tells the inventory that a roll was used for a requirement.
type StockConsumption struct {
	RollID        string  `json:"roll_id"`
	RequirementID string  `json:"requirement_id"`
	CutID         string  `json:"cut_id"`
	WidthUsed     float64 `json:"width_used"`
	Remainder     float64 `json:"remainder"` // becomes new, smaller available stock
}

// Cut is one produced roll at the exact width an order asked for.
type Cut struct {
	ID            string  `json:"id"`
	Width         float64 `json:"width"`
	RequirementID string  `json:"requirement_id,omitempty"`
	OrderID       string  `json:"order_id,omitempty"`
	UsesExisting  bool    `json:"uses_existing"`
	SourceRollID  string  `json:"source_roll_id,omitempty"`
	Manual        bool    `json:"manual,omitempty"` // added by an operator
	Description   string  `json:"description,omitempty"`
}

// Set is an intermediate roll of TargetWidth slit from a jumbo.
type Set struct {
	ID          string  `json:"id"`
	TargetWidth float64 `json:"target_width"`
	Cuts        []Cut   `json:"cuts"`
}

// UsedWidth returns the total width of the cuts in the set.
func (s Set) UsedWidth() float64 {
	var total float64
	for _, c := range s.Cuts {
		total += c.Width
	}
	return total
}

// Waste returns the unused width of the set. It is never negative.
func (s Set) Waste() float64 {
	w := s.TargetWidth - s.UsedWidth()
	if w < 0 {
		return 0
	}
	return w
}

// Remaining is an alias for Waste read as free capacity while a set is open.
func (s Set) Remaining() float64 {
	return s.Waste()
}

// Efficiency returns used width over target width as a fraction.
func (s Set) Efficiency() float64 {
	if s.TargetWidth == 0 {
		return 0
	}
	return s.UsedWidth() / s.TargetWidth
}

// Jumbo is a master roll slit into up to MaxSetsPerJumbo sets.
type Jumbo struct {
	ID   string `json:"id"`
	Sets []Set  `json:"sets"`
}

// Partial reports whether the jumbo has room for more sets.
func (j Jumbo) Partial() bool {
	return len(j.Sets) < MaxSetsPerJumbo
}

// UsedWidth sums the used width across the jumbo's sets.
func (j Jumbo) UsedWidth() float64 {
	var total float64
	for _, s := range j.Sets {
		total += s.UsedWidth()
	}
	return total
}

// Waste sums the waste across the jumbo's sets.
func (j Jumbo) Waste() float64 {
	var total float64
	for _, s := range j.Sets {
		total += s.Waste()
	}
	return total
}

// CutCount returns the number of cuts in the jumbo.
func (j Jumbo) CutCount() int {
	n := 0
	for _, s := range j.Sets {
		n += len(s.Cuts)
	}
	return n
}

// Summary holds the roll-ups shown for a suggestion.
type Summary struct {
	TotalRolls        int     `json:"total_rolls"`
	RollsFromExisting int     `json:"rolls_from_existing"`
	NewRollsNeeded    int     `json:"new_rolls_needed"`
	TotalSets         int     `json:"total_sets"`
	TotalJumbos       int     `json:"total_jumbos"`
	PartialJumbos     int     `json:"partial_jumbos"`
	UsedWidth         float64 `json:"used_width"`
	ProducedWidth     float64 `json:"produced_width"`
	TotalWaste        float64 `json:"total_waste"`
	AverageWaste      float64 `json:"average_waste"` // per set
	Efficiency        float64 `json:"efficiency"`    // used / produced, 0..1
}

// EfficiencyPercent returns Efficiency as a percentage.
func (s Summary) EfficiencyPercent() float64 {
	return s.Efficiency * 100.0
}

// Suggestion is the cutting plan for one paper spec.
type Suggestion struct {
	ID             string             `json:"id"`
	Spec           PaperSpec          `json:"spec"`
	TargetWidth    float64            `json:"target_width"`
	Jumbos         []Jumbo            `json:"jumbo_rolls"`
	ExistingCuts   []Cut              `json:"existing_cuts"`
	Consumptions   []StockConsumption `json:"consumptions"`
	RequirementIDs []string           `json:"requirement_ids"`
	Summary        Summary            `json:"summary"`
	Version        int                `json:"version"`
}

// Clone returns a deep copy of the suggestion.
func (s Suggestion) Clone() Suggestion {
	out := s
	out.Jumbos = make([]Jumbo, len(s.Jumbos))
	for i, j := range s.Jumbos {
		nj := Jumbo{ID: j.ID, Sets: make([]Set, len(j.Sets))}
		for k, set := range j.Sets {
			ns := set
			ns.Cuts = slices.Clone(set.Cuts)
			nj.Sets[k] = ns
		}
		out.Jumbos[i] = nj
	}
	out.ExistingCuts = slices.Clone(s.ExistingCuts)
	out.Consumptions = slices.Clone(s.Consumptions)
	out.RequirementIDs = slices.Clone(s.RequirementIDs)
	return out
}

// Result is the full output of one planning call.
type Result struct {
	Status      string       `json:"status"`
	TargetWidth float64      `json:"target_width"`
	Suggestions []Suggestion `json:"suggestions"`
	Summary     Summary      `json:"summary"`
}

// Settings holds optimizer configuration.
type Settings struct {
	TargetWidth     float64 `json:"target_width"`      // set width in inches
	Epsilon         float64 `json:"epsilon"`           // width comparison tolerance in inches
	MaxStockOverrun float64 `json:"max_stock_overrun"` // max leftover on a reused roll; 0 = no limit
	Parallel        bool    `json:"parallel"`          // pack spec groups concurrently
	Evolve          bool    `json:"evolve"`            // search cut orders for fewer sets after best fit
}

// DefaultSettings returns the mill's standard settings.
func DefaultSettings() Settings {
	return Settings{
		TargetWidth:     DefaultTargetWidth,
		Epsilon:         0.01,
		MaxStockOverrun: 0,
		Parallel:        true,
	}
}

// Normalized fills zero values with defaults.
func (s Settings) Normalized() Settings {
	d := DefaultSettings()
	if s.TargetWidth <= 0 {
		s.TargetWidth = d.TargetWidth
	}
	if s.Epsilon <= 0 {
		s.Epsilon = d.Epsilon
	}
	if s.MaxStockOverrun < 0 {
		s.MaxStockOverrun = 0
	}
	return s
}
