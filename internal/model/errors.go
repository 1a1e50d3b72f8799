package model

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below match them with errors.Is.
var (
	ErrRequirementTooWide = errors.New("requirement wider than target width")
	ErrJumboFull          = errors.New("jumbo has no room for another set")
	ErrSetFull            = errors.New("set has no room for cut")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidSpec        = errors.New("invalid paper spec")
	ErrVersionConflict    = errors.New("suggestion was modified concurrently")
	ErrInvalidTransition  = errors.New("invalid requirement state transition")
)

// PackingErrorKind classifies packing failures.
type PackingErrorKind string

const (
	RequirementTooWide PackingErrorKind = "requirement_too_wide"
)

// PackingError is returned when the packer cannot place a requirement.
type PackingError struct {
	Kind          PackingErrorKind
	RequirementID string
	Width         float64
	TargetWidth   float64
}

func (e *PackingError) Error() string {
	if e.RequirementID != "" {
		return fmt.Sprintf("requirement %s: width %.2f exceeds target width %.2f", e.RequirementID, e.Width, e.TargetWidth)
	}
	return fmt.Sprintf("width %.2f exceeds target width %.2f", e.Width, e.TargetWidth)
}

func (e *PackingError) Is(target error) bool {
	return target == ErrRequirementTooWide && e.Kind == RequirementTooWide
}

// CapacityErrorKind classifies manual adjustment capacity failures.
type CapacityErrorKind string

const (
	JumboFull CapacityErrorKind = "jumbo_full"
	SetFull   CapacityErrorKind = "set_full"
)

// CapacityError is returned when a manual cut does not fit.
type CapacityError struct {
	Kind      CapacityErrorKind
	JumboID   string
	SetID     string
	Width     float64
	Remaining float64
}

func (e *CapacityError) Error() string {
	switch e.Kind {
	case JumboFull:
		return fmt.Sprintf("jumbo %s already has %d sets", e.JumboID, MaxSetsPerJumbo)
	default:
		return fmt.Sprintf("set %s has %.2f remaining, cut needs %.2f", e.SetID, e.Remaining, e.Width)
	}
}

func (e *CapacityError) Is(target error) bool {
	switch target {
	case ErrJumboFull:
		return e.Kind == JumboFull
	case ErrSetFull:
		return e.Kind == SetFull
	}
	return false
}

// NotFoundError reports an unknown id.
type NotFoundError struct {
	Kind string // "cut", "set", "jumbo", "suggestion", "requirement", "roll"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InputErrorKind classifies rejected input.
type InputErrorKind string

const (
	InvalidSpec        InputErrorKind = "invalid_spec"
	InvalidRequirement InputErrorKind = "invalid_requirement"
	InvalidWidth       InputErrorKind = "invalid_width"
	SpecMismatch       InputErrorKind = "spec_mismatch"
)

// InputError reports malformed input.
type InputError struct {
	Kind   InputErrorKind
	Detail string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *InputError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	return target == ErrInvalidSpec && e.Kind == InvalidSpec
}
