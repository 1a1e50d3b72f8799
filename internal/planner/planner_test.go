package planner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/piwi3910/ReelCut/internal/engine"
	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/store"
	"github.com/piwi3910/ReelCut/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kraft = model.NewPaperSpec(120, 18, "natural")

var (
	_ PlanStore = (*store.Memory)(nil)
	_ PlanStore = (*sqlite.Store)(nil)
)

func newTestService(t *testing.T) (*Service, *store.Memory, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	ids := model.NewSequenceGenerator()
	mem := store.NewMemory(ids)
	require.NoError(t, mem.AddRequirements(ctx,
		model.PendingRequirement{ID: "r1", OrderID: "SO-1", Width: 40, Spec: kraft, Quantity: 3},
		model.PendingRequirement{ID: "r2", OrderID: "SO-2", Width: 38, Spec: kraft, Quantity: 2},
		model.PendingRequirement{ID: "r3", OrderID: "SO-3", Width: 45, Spec: kraft, Quantity: 1},
	))
	require.NoError(t, mem.AddStock(ctx, model.ExistingStockRoll{ID: "s1", Width: 70, Spec: kraft}))

	var logs bytes.Buffer
	settings := model.DefaultSettings()
	settings.Parallel = false
	svc := New(Deps{
		Requirements: mem,
		Inventory:    mem,
		Plans:        mem,
		Settings:     settings,
		IDs:          ids,
		Logger:       slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	return svc, mem, &logs
}

func TestSuggestUsesStockAndLogs(t *testing.T) {
	svc, _, logs := newTestService(t)

	result, err := svc.Suggest(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)

	s := result.Suggestions[0]
	require.Len(t, s.ExistingCuts, 1)
	assert.Equal(t, "r3", s.ExistingCuts[0].RequirementID, "the widest requirement takes the stock roll")
	assert.Equal(t, 6, result.Summary.TotalRolls)
	assert.Equal(t, 1, result.Summary.RollsFromExisting)
	assert.Contains(t, logs.String(), "suggestions generated")

	got, err := svc.Suggestion(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSuggestFilter(t *testing.T) {
	svc, _, _ := newTestService(t)

	result, err := svc.Suggest(context.Background(), store.Filter{OrderIDs: []string{"SO-2"}})
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, []string{"r2"}, result.Suggestions[0].RequirementIDs)
}

func TestSuggestTooWide(t *testing.T) {
	svc, mem, _ := newTestService(t)
	require.NoError(t, mem.AddRequirements(context.Background(),
		model.PendingRequirement{ID: "wide", OrderID: "SO-9", Width: 130, Spec: kraft, Quantity: 1}))

	_, err := svc.Suggest(context.Background(), store.Filter{})
	assert.ErrorIs(t, err, model.ErrRequirementTooWide)
}

func TestSuggestionNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Suggestion("sug-404")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = svc.Adjust(context.Background(), "sug-404", 0, engine.RemoveCutOp{CutID: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = svc.Commit(context.Background(), "sug-404")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAdjustVersioning(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Suggest(ctx, store.Filter{})
	require.NoError(t, err)
	s := result.Suggestions[0]

	op := engine.AddCutOp{AddCutRequest: engine.AddCutRequest{JumboID: s.Jumbos[0].ID, Width: 10, Spec: kraft, OrderID: "SO-7"}}
	out, err := svc.Adjust(ctx, s.ID, s.Version, op)
	require.NoError(t, err)
	assert.Equal(t, s.Version+1, out.Version)

	_, err = svc.Adjust(ctx, s.ID, s.Version, op)
	assert.ErrorIs(t, err, model.ErrVersionConflict)
}

func TestCommit(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Suggest(ctx, store.Filter{})
	require.NoError(t, err)
	s := result.Suggestions[0]

	ref, err := svc.Commit(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, ref.SuggestionID)
	assert.Equal(t, 6, ref.CutCount)

	pending, err := mem.ListPending(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)

	// s1 (70") gave 45" to r3 and keeps its 25" leftover.
	rolls, err := mem.ListStock(ctx)
	require.NoError(t, err)
	require.Len(t, rolls, 1)
	assert.InDelta(t, 25.0, rolls[0].Width, 1e-9)

	plans, err := mem.ListPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	committed, ok := svc.Committed(s.ID)
	assert.True(t, ok)
	assert.Equal(t, ref, committed)

	_, err = svc.Commit(ctx, s.ID)
	assert.ErrorIs(t, err, ErrCommitted)
	_, err = svc.Adjust(ctx, s.ID, 0, engine.RemoveCutOp{CutID: s.Jumbos[0].Sets[0].Cuts[0].ID})
	assert.ErrorIs(t, err, ErrCommitted)
}

func TestCommitSkipsRequirementsRemovedByOperator(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Suggest(ctx, store.Filter{OrderIDs: []string{"SO-3"}})
	require.NoError(t, err)
	s := result.Suggestions[0]
	require.Len(t, s.ExistingCuts, 1)

	_, err = svc.Adjust(ctx, s.ID, 0, engine.RemoveCutOp{CutID: s.ExistingCuts[0].ID})
	require.NoError(t, err)
	_, err = svc.Commit(ctx, s.ID)
	require.NoError(t, err)

	pending, err := mem.ListPending(ctx, store.Filter{OrderIDs: []string{"SO-3"}})
	require.NoError(t, err)
	assert.Len(t, pending, 1, "a requirement with no cuts left stays pending")

	rolls, err := mem.ListStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 70.0, rolls[0].Width, "no consumption once the stock cut is removed")
}

func TestCommitFailureCanBeRetried(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Suggest(ctx, store.Filter{})
	require.NoError(t, err)
	s := result.Suggestions[0]

	// Another process moved r1 first.
	require.NoError(t, mem.MarkInProduction(ctx, []string{"r1"}))
	_, err = svc.Commit(ctx, s.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, ok := svc.Committed(s.ID)
	assert.False(t, ok)
	_, err = svc.Adjust(ctx, s.ID, 0, engine.RemoveCutOp{CutID: "cut-404"})
	assert.ErrorIs(t, err, model.ErrNotFound, "a failed commit leaves the suggestion editable")
}

func TestCommitFailureLeavesRequirementsPending(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	// Two separate runs both plan against the 70" roll s1.
	first, err := svc.Suggest(ctx, store.Filter{OrderIDs: []string{"SO-3"}})
	require.NoError(t, err)
	second, err := svc.Suggest(ctx, store.Filter{OrderIDs: []string{"SO-2"}})
	require.NoError(t, err)
	a, b := first.Suggestions[0], second.Suggestions[0]
	require.Len(t, a.Consumptions, 1)
	require.Len(t, b.Consumptions, 1)
	require.Equal(t, "s1", b.Consumptions[0].RollID)

	_, err = svc.Commit(ctx, a.ID)
	require.NoError(t, err)

	// s1 is down to 25", too narrow for r2's 38".
	_, err = svc.Commit(ctx, b.ID)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	pending, err := mem.ListPending(ctx, store.Filter{OrderIDs: []string{"SO-2"}})
	require.NoError(t, err)
	assert.Len(t, pending, 1, "r2 stays pending")
	plans, err := mem.ListPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 1)
	rolls, err := mem.ListStock(ctx)
	require.NoError(t, err)
	require.Len(t, rolls, 1)
	assert.InDelta(t, 25.0, rolls[0].Width, 1e-9)

	// Once the roll is restocked the same suggestion commits.
	require.NoError(t, mem.AddStock(ctx, model.ExistingStockRoll{ID: "s1", Width: 70, Spec: kraft}))
	ref, err := svc.Commit(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, ref.SuggestionID)

	pending, err = mem.ListPending(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, pending, 1, "only r1 is left")
}

func TestCommittedSuggestionLeavesMemory(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Suggest(ctx, store.Filter{})
	require.NoError(t, err)
	id := result.Suggestions[0].ID
	_, err = svc.Commit(ctx, id)
	require.NoError(t, err)

	_, err = svc.Suggestion(id)
	assert.ErrorIs(t, err, ErrCommitted)
	assert.Empty(t, svc.sessions)
	assert.Empty(t, svc.order)
}

func TestOldSuggestionsEvicted(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(nil)
	require.NoError(t, mem.AddRequirements(ctx,
		model.PendingRequirement{ID: "r1", OrderID: "SO-1", Width: 40, Spec: kraft, Quantity: 1}))
	svc := New(Deps{Requirements: mem, Inventory: mem, Plans: mem, Settings: model.DefaultSettings(), MaxSessions: 2})

	var ids []string
	for i := 0; i < 3; i++ {
		result, err := svc.Suggest(ctx, store.Filter{})
		require.NoError(t, err)
		ids = append(ids, result.Suggestions[0].ID)
	}

	_, err := svc.Suggestion(ids[0])
	assert.ErrorIs(t, err, model.ErrNotFound, "the oldest suggestion is dropped")
	for _, id := range ids[1:] {
		_, err := svc.Suggestion(id)
		assert.NoError(t, err)
	}
	assert.Len(t, svc.sessions, 2)
}

func TestConcurrentCommitOnlyOnce(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Suggest(ctx, store.Filter{})
	require.NoError(t, err)
	id := result.Suggestions[0].ID

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Commit(ctx, id)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, ErrCommitted) || errors.Is(err, model.ErrInvalidTransition), "unexpected error %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	plans, err := mem.ListPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestResultFor(t *testing.T) {
	s := model.Suggestion{ID: "sug-1", TargetWidth: 118, Summary: model.Summary{TotalRolls: 2}}
	r := ResultFor(s)
	assert.Equal(t, engine.StatusSuccess, r.Status)
	assert.Equal(t, 118.0, r.TargetWidth)
	assert.Equal(t, 2, r.Summary.TotalRolls)
	require.Len(t, r.Suggestions, 1)
}
