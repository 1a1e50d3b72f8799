// Package store holds the persistence types shared by the requirement,
// inventory and production-plan stores, and an in-memory implementation of
// all three.
package store

import (
	"slices"
	"time"

	"github.com/piwi3910/ReelCut/internal/model"
)

// Filter narrows the pending requirements fed to the optimizer. Zero values
// match everything.
type Filter struct {
	OrderIDs []string         `json:"order_ids,omitempty"`
	Spec     *model.PaperSpec `json:"spec,omitempty"`
}

// Match reports whether r passes the filter. State is not checked.
func (f Filter) Match(r model.PendingRequirement) bool {
	if len(f.OrderIDs) > 0 && !slices.Contains(f.OrderIDs, r.OrderID) {
		return false
	}
	if f.Spec != nil && !f.Spec.Equal(r.Spec) {
		return false
	}
	return true
}

// PlanRef identifies a committed production plan.
type PlanRef struct {
	ID           string          `json:"id"`
	SuggestionID string          `json:"suggestion_id"`
	Spec         model.PaperSpec `json:"spec"`
	JumboCount   int             `json:"jumbo_count"`
	CutCount     int             `json:"cut_count"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Plan is a committed suggestion together with its reference.
type Plan struct {
	Ref        PlanRef          `json:"ref"`
	Suggestion model.Suggestion `json:"suggestion"`
}

// NewPlanRef describes s as a plan with the given id.
func NewPlanRef(id string, s model.Suggestion, createdAt time.Time) PlanRef {
	ref := PlanRef{
		ID:           id,
		SuggestionID: s.ID,
		Spec:         s.Spec,
		JumboCount:   len(s.Jumbos),
		CutCount:     len(s.ExistingCuts),
		CreatedAt:    createdAt.UTC(),
	}
	for _, j := range s.Jumbos {
		ref.CutCount += j.CutCount()
	}
	return ref
}

// RemainingAfter returns the width left on a roll after widthUsed is cut
// from it, and whether that leftover is still worth keeping as stock.
func RemainingAfter(roll model.ExistingStockRoll, widthUsed float64) (float64, bool) {
	remaining := roll.Width - widthUsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, remaining >= model.MinRemnantWidth
}
