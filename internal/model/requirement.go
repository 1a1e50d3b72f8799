package model

import "fmt"

// RequirementState is the lifecycle state of a pending requirement.
type RequirementState string

const (
	StatePending      RequirementState = "pending"
	StateInProduction RequirementState = "in_production"
	StateResolved     RequirementState = "resolved"
	StateCancelled    RequirementState = "cancelled"
)

func (s RequirementState) String() string {
	return string(s)
}

// Valid reports whether s is a known state.
func (s RequirementState) Valid() bool {
	switch s {
	case StatePending, StateInProduction, StateResolved, StateCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s RequirementState) Terminal() bool {
	return s == StateResolved || s == StateCancelled
}

var allowedTransitions = map[RequirementState][]RequirementState{
	StatePending:      {StateInProduction, StateCancelled},
	StateInProduction: {StateResolved},
}

// CanTransition reports whether a requirement may move from s to to.
func (s RequirementState) CanTransition(to RequirementState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PendingRequirement is one unit of unmet demand for a given width and spec.
type PendingRequirement struct {
	ID       string           `json:"id"`
	OrderID  string           `json:"order_id"`
	Width    float64          `json:"width"` // inches
	Spec     PaperSpec        `json:"spec"`
	Quantity int              `json:"quantity"`
	Reason   string           `json:"reason,omitempty"`
	State    RequirementState `json:"state"`
}

// NewRequirement creates a pending requirement with a generated ID.
func NewRequirement(ids IDGenerator, orderID string, width float64, spec PaperSpec, qty int) PendingRequirement {
	return PendingRequirement{
		ID:       ids.NewID("req"),
		OrderID:  orderID,
		Width:    width,
		Spec:     spec.Normalize(),
		Quantity: qty,
		State:    StatePending,
	}
}

// Validate checks width, quantity and spec.
func (r PendingRequirement) Validate() error {
	if r.Width <= 0 {
		return &InputError{Kind: InvalidRequirement, Detail: fmt.Sprintf("requirement %s: width must be positive, got %g", r.ID, r.Width)}
	}
	if r.Quantity <= 0 {
		return &InputError{Kind: InvalidRequirement, Detail: fmt.Sprintf("requirement %s: quantity must be positive, got %d", r.ID, r.Quantity)}
	}
	if err := r.Spec.Validate(); err != nil {
		return fmt.Errorf("requirement %s: %w", r.ID, err)
	}
	return nil
}

// Transition moves the requirement to a new state.
func (r *PendingRequirement) Transition(to RequirementState) error {
	if !r.State.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	r.State = to
	return nil
}

// TotalWidth is the width demanded across the full quantity.
func (r PendingRequirement) TotalWidth() float64 {
	return r.Width * float64(r.Quantity)
}
