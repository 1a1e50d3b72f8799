// Package project saves and loads worksheets and full data backups as JSON.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/piwi3910/ReelCut/internal/model"
)

// Worksheet is a self-contained planning input: the requirements to plan,
// the stock to draw from and optionally the settings to plan with.
type Worksheet struct {
	Requirements []model.PendingRequirement `json:"requirements"`
	Stock        []model.ExistingStockRoll  `json:"stock"`
	Settings     *model.Settings            `json:"settings,omitempty"`
}

// SaveWorksheet writes the worksheet to path as indented JSON, creating
// parent directories as needed.
func SaveWorksheet(path string, ws Worksheet) error {
	if ws.Requirements == nil {
		ws.Requirements = []model.PendingRequirement{}
	}
	if ws.Stock == nil {
		ws.Stock = []model.ExistingStockRoll{}
	}
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal worksheet: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create worksheet directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write worksheet: %w", err)
	}
	return nil
}

// LoadWorksheet reads a worksheet. Specs are normalized, requirements without
// a state become pending and every requirement and roll is validated.
func LoadWorksheet(path string) (Worksheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Worksheet{}, fmt.Errorf("failed to read worksheet: %w", err)
	}
	var ws Worksheet
	if err := json.Unmarshal(data, &ws); err != nil {
		return Worksheet{}, fmt.Errorf("failed to parse worksheet: %w", err)
	}

	if ws.Requirements == nil {
		ws.Requirements = []model.PendingRequirement{}
	}
	if ws.Stock == nil {
		ws.Stock = []model.ExistingStockRoll{}
	}
	for i := range ws.Requirements {
		r := &ws.Requirements[i]
		if r.ID == "" {
			return Worksheet{}, &model.InputError{Kind: model.InvalidRequirement, Detail: fmt.Sprintf("worksheet requirement %d has no id", i+1)}
		}
		r.Spec = r.Spec.Normalize()
		if r.State == "" {
			r.State = model.StatePending
		}
		if err := r.Validate(); err != nil {
			return Worksheet{}, err
		}
	}
	for i := range ws.Stock {
		roll := &ws.Stock[i]
		roll.Spec = roll.Spec.Normalize()
		if roll.ID == "" || roll.Width <= 0 {
			return Worksheet{}, &model.InputError{Kind: model.InvalidWidth, Detail: fmt.Sprintf("worksheet stock roll %d needs an id and a positive width", i+1)}
		}
		if err := roll.Spec.Validate(); err != nil {
			return Worksheet{}, fmt.Errorf("stock roll %s: %w", roll.ID, err)
		}
	}
	return ws, nil
}

// Pending returns the worksheet requirements still in the pending state.
func (ws Worksheet) Pending() []model.PendingRequirement {
	out := make([]model.PendingRequirement, 0, len(ws.Requirements))
	for _, r := range ws.Requirements {
		if r.State == model.StatePending {
			out = append(out, r)
		}
	}
	return out
}
