package project

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/store"
)

// BackupVersion is written into every backup file.
const BackupVersion = "1.0.0"

// BackupData is the top-level structure for export and import of all data.
type BackupData struct {
	Version      string                     `json:"version"`
	CreatedAt    string                     `json:"created_at"`
	Requirements []model.PendingRequirement `json:"requirements"`
	Stock        []model.ExistingStockRoll  `json:"stock"`
	Plans        []store.Plan               `json:"plans"`
}

// Source is a store that can be backed up.
type Source interface {
	ListRequirements(ctx context.Context) ([]model.PendingRequirement, error)
	ListStock(ctx context.Context) ([]model.ExistingStockRoll, error)
	ListPlans(ctx context.Context) ([]store.PlanRef, error)
	GetPlan(ctx context.Context, id string) (store.Plan, error)
}

// Target is a store a backup can be restored into.
type Target interface {
	Source
	AddRequirements(ctx context.Context, reqs ...model.PendingRequirement) error
	AddStock(ctx context.Context, rolls ...model.ExistingStockRoll) error
	PutPlan(ctx context.Context, p store.Plan) error
}

// RestoreStats counts what a restore added and skipped.
type RestoreStats struct {
	Requirements int `json:"requirements"`
	Stock        int `json:"stock"`
	Plans        int `json:"plans"`
	Skipped      int `json:"skipped"`
}

// Collect reads everything in src into a backup stamped with now.
func Collect(ctx context.Context, src Source, now time.Time) (BackupData, error) {
	reqs, err := src.ListRequirements(ctx)
	if err != nil {
		return BackupData{}, fmt.Errorf("failed to list requirements: %w", err)
	}
	rolls, err := src.ListStock(ctx)
	if err != nil {
		return BackupData{}, fmt.Errorf("failed to list stock: %w", err)
	}
	refs, err := src.ListPlans(ctx)
	if err != nil {
		return BackupData{}, fmt.Errorf("failed to list plans: %w", err)
	}
	plans := make([]store.Plan, 0, len(refs))
	for _, ref := range refs {
		p, err := src.GetPlan(ctx, ref.ID)
		if err != nil {
			return BackupData{}, fmt.Errorf("failed to read plan %s: %w", ref.ID, err)
		}
		plans = append(plans, p)
	}
	return BackupData{
		Version:      BackupVersion,
		CreatedAt:    now.UTC().Format(time.RFC3339),
		Requirements: reqs,
		Stock:        rolls,
		Plans:        plans,
	}, nil
}

// Restore merges a backup into dst. Records whose id already exists in dst
// are skipped.
func Restore(ctx context.Context, dst Target, data BackupData) (RestoreStats, error) {
	var stats RestoreStats

	existing, err := dst.ListRequirements(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list requirements: %w", err)
	}
	reqIDs := make(map[string]bool, len(existing))
	for _, r := range existing {
		reqIDs[r.ID] = true
	}
	var reqs []model.PendingRequirement
	for _, r := range data.Requirements {
		if reqIDs[r.ID] {
			stats.Skipped++
			continue
		}
		reqIDs[r.ID] = true
		reqs = append(reqs, r)
	}
	if len(reqs) > 0 {
		if err := dst.AddRequirements(ctx, reqs...); err != nil {
			return stats, fmt.Errorf("failed to restore requirements: %w", err)
		}
		stats.Requirements = len(reqs)
	}

	rolls, err := dst.ListStock(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list stock: %w", err)
	}
	rollIDs := make(map[string]bool, len(rolls))
	for _, r := range rolls {
		rollIDs[r.ID] = true
	}
	var newRolls []model.ExistingStockRoll
	for _, r := range data.Stock {
		if rollIDs[r.ID] {
			stats.Skipped++
			continue
		}
		rollIDs[r.ID] = true
		newRolls = append(newRolls, r)
	}
	if len(newRolls) > 0 {
		if err := dst.AddStock(ctx, newRolls...); err != nil {
			return stats, fmt.Errorf("failed to restore stock: %w", err)
		}
		stats.Stock = len(newRolls)
	}

	refs, err := dst.ListPlans(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list plans: %w", err)
	}
	planIDs := make(map[string]bool, len(refs))
	for _, ref := range refs {
		planIDs[ref.ID] = true
	}
	for _, p := range data.Plans {
		if planIDs[p.Ref.ID] {
			stats.Skipped++
			continue
		}
		if err := dst.PutPlan(ctx, p); err != nil {
			return stats, fmt.Errorf("failed to restore plan %s: %w", p.Ref.ID, err)
		}
		planIDs[p.Ref.ID] = true
		stats.Plans++
	}

	return stats, nil
}

// ExportAllData writes a backup to a single JSON file at exportPath.
func ExportAllData(exportPath string, backup BackupData) error {
	if backup.Version == "" {
		backup.Version = BackupVersion
	}
	if backup.CreatedAt == "" {
		backup.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup data: %w", err)
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := os.WriteFile(exportPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	return nil
}

// ImportAllData reads a backup JSON file and returns the contained data.
// The caller applies it, usually with Restore.
func ImportAllData(importPath string) (BackupData, error) {
	data, err := os.ReadFile(importPath)
	if err != nil {
		return BackupData{}, fmt.Errorf("failed to read backup file: %w", err)
	}
	var backup BackupData
	if err := json.Unmarshal(data, &backup); err != nil {
		return BackupData{}, fmt.Errorf("failed to parse backup file: %w", err)
	}
	if backup.Version == "" {
		return BackupData{}, fmt.Errorf("invalid backup file: missing version field")
	}
	if backup.Requirements == nil {
		backup.Requirements = []model.PendingRequirement{}
	}
	if backup.Stock == nil {
		backup.Stock = []model.ExistingStockRoll{}
	}
	if backup.Plans == nil {
		backup.Plans = []store.Plan{}
	}
	return backup, nil
}
