package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"packing too wide", &PackingError{Kind: RequirementTooWide, Width: 130, TargetWidth: 118}, ErrRequirementTooWide, true},
		{"jumbo full", &CapacityError{Kind: JumboFull}, ErrJumboFull, true},
		{"jumbo full is not set full", &CapacityError{Kind: JumboFull}, ErrSetFull, false},
		{"set full", &CapacityError{Kind: SetFull}, ErrSetFull, true},
		{"not found", &NotFoundError{Kind: "cut", ID: "x"}, ErrNotFound, true},
		{"input", &InputError{Kind: SpecMismatch}, ErrInvalidInput, true},
		{"input is not spec", &InputError{Kind: SpecMismatch}, ErrInvalidSpec, false},
		{"wrapped", fmt.Errorf("planning: %w", &NotFoundError{Kind: "suggestion", ID: "s"}), ErrNotFound, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	pe := &PackingError{Kind: RequirementTooWide, RequirementID: "req-9", Width: 130, TargetWidth: 118}
	if !strings.Contains(pe.Error(), "req-9") || !strings.Contains(pe.Error(), "130.00") {
		t.Errorf("unexpected message: %s", pe.Error())
	}

	ce := &CapacityError{Kind: SetFull, SetID: "set-2", Width: 45, Remaining: 40}
	if !strings.Contains(ce.Error(), "set-2") {
		t.Errorf("unexpected message: %s", ce.Error())
	}

	nf := &NotFoundError{Kind: "jumbo", ID: "jumbo-7"}
	if nf.Error() != `jumbo "jumbo-7" not found` {
		t.Errorf("unexpected message: %s", nf.Error())
	}
}
