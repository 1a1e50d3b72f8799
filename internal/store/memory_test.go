package store

import (
	"context"
	"testing"

	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kraft = model.NewPaperSpec(120, 18, "natural")
	white = model.NewPaperSpec(100, 16, "white")
)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	m := NewMemory(model.NewSequenceGenerator())
	require.NoError(t, m.AddRequirements(ctx,
		model.PendingRequirement{ID: "r1", OrderID: "SO-1", Width: 40, Spec: kraft, Quantity: 3},
		model.PendingRequirement{ID: "r2", OrderID: "SO-2", Width: 38, Spec: kraft, Quantity: 2},
		model.PendingRequirement{ID: "r3", OrderID: "SO-1", Width: 50, Spec: white, Quantity: 1},
		model.PendingRequirement{ID: "r4", OrderID: "SO-3", Width: 20, Spec: kraft, Quantity: 1, State: model.StateCancelled},
	))
	require.NoError(t, m.AddStock(ctx,
		model.ExistingStockRoll{ID: "s2", Width: 45, Spec: kraft},
		model.ExistingStockRoll{ID: "s1", Width: 60, Spec: model.PaperSpec{GSM: 120, BF: 18, Shade: "Natural"}},
		model.ExistingStockRoll{ID: "w1", Width: 30, Spec: white},
	))
	return m
}

func TestFilterMatch(t *testing.T) {
	r := model.PendingRequirement{OrderID: "SO-1", Spec: kraft}
	assert.True(t, Filter{}.Match(r))
	assert.True(t, Filter{OrderIDs: []string{"SO-2", "SO-1"}}.Match(r))
	assert.False(t, Filter{OrderIDs: []string{"SO-2"}}.Match(r))
	assert.True(t, Filter{Spec: &kraft}.Match(r))
	assert.False(t, Filter{Spec: &white}.Match(r))
}

func TestMemory_ListPending(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	all, err := m.ListPending(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3, "cancelled requirements are not pending")
	assert.Equal(t, "r1", all[0].ID)

	byOrder, err := m.ListPending(ctx, Filter{OrderIDs: []string{"SO-1"}})
	require.NoError(t, err)
	assert.Len(t, byOrder, 2)

	bySpec, err := m.ListPending(ctx, Filter{Spec: &white})
	require.NoError(t, err)
	require.Len(t, bySpec, 1)
	assert.Equal(t, "r3", bySpec[0].ID)
}

func TestMemory_AddRequirementsRejectsDuplicatesAtomically(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	err := m.AddRequirements(ctx,
		model.PendingRequirement{ID: "r9", OrderID: "SO-9", Width: 10, Spec: kraft, Quantity: 1},
		model.PendingRequirement{ID: "r1", OrderID: "SO-9", Width: 10, Spec: kraft, Quantity: 1},
	)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	all, err := m.ListRequirements(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4, "nothing stored on failure")
}

func TestMemory_AddRequirementsValidates(t *testing.T) {
	m := NewMemory(nil)
	err := m.AddRequirements(context.Background(), model.PendingRequirement{ID: "bad", Width: 0, Spec: kraft, Quantity: 1})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestMemory_MarkInProduction(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.MarkInProduction(ctx, []string{"r1", "r2"}))
	pending, err := m.ListPending(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r3", pending[0].ID)

	// A second commit of the same requirement is an invalid transition, and
	// the batch is rejected as a whole.
	err = m.MarkInProduction(ctx, []string{"r3", "r1"})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	pending, err = m.ListPending(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	err = m.MarkInProduction(ctx, []string{"nope"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemory_ListExistingStock(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	rolls, err := m.ListExistingStock(ctx, kraft)
	require.NoError(t, err)
	require.Len(t, rolls, 2)
	assert.Equal(t, "s1", rolls[0].ID)
	assert.Equal(t, "natural", rolls[0].Spec.Shade)

	all, err := m.ListStock(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemory_Consume(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Consume(ctx, "s1", 40))
	rolls, err := m.ListExistingStock(ctx, kraft)
	require.NoError(t, err)
	require.Len(t, rolls, 2)
	assert.Equal(t, 20.0, rolls[0].Width, "leftover stays as stock")

	require.NoError(t, m.Consume(ctx, "s2", 40))
	rolls, err = m.ListExistingStock(ctx, kraft)
	require.NoError(t, err)
	assert.Len(t, rolls, 1, "a 5\" leftover is trim waste")

	assert.ErrorIs(t, m.Consume(ctx, "s2", 1), model.ErrNotFound)
	assert.ErrorIs(t, m.Consume(ctx, "w1", 31), model.ErrInvalidInput)
}

func TestMemory_CommitPlan(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	s := model.Suggestion{
		ID:   "sug-1",
		Spec: kraft,
		ExistingCuts: []model.Cut{
			{ID: "cut-1", Width: 20, RequirementID: "r1", UsesExisting: true, SourceRollID: "s1"},
			{ID: "cut-2", Width: 30, RequirementID: "r1", UsesExisting: true, SourceRollID: "s1"},
		},
		Consumptions: []model.StockConsumption{
			{RollID: "s1", RequirementID: "r1", CutID: "cut-1", WidthUsed: 20},
			{RollID: "s1", RequirementID: "r1", CutID: "cut-2", WidthUsed: 30},
		},
	}
	ref, err := m.CommitPlan(ctx, s, []string{"r1"})
	require.NoError(t, err)
	assert.Equal(t, "sug-1", ref.SuggestionID)

	rolls, err := m.ListExistingStock(ctx, kraft)
	require.NoError(t, err)
	require.Len(t, rolls, 2)
	assert.Equal(t, 10.0, rolls[0].Width, "both consumptions come off s1")
	pending, err := m.ListPending(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestMemory_CommitPlanAllOrNothing(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	s := model.Suggestion{
		ID:   "sug-1",
		Spec: kraft,
		Consumptions: []model.StockConsumption{
			{RollID: "s1", RequirementID: "r1", WidthUsed: 40},
			{RollID: "s2", RequirementID: "r2", WidthUsed: 50},
		},
	}
	_, err := m.CommitPlan(ctx, s, []string{"r1", "r2"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	pending, err := m.ListPending(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, pending, 3, "no requirement moved")
	rolls, err := m.ListExistingStock(ctx, kraft)
	require.NoError(t, err)
	assert.Equal(t, 60.0, rolls[0].Width, "s1 untouched")
	plans, err := m.ListPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)

	// A roll retired by an earlier consumption cannot be cut again.
	s.Consumptions = []model.StockConsumption{
		{RollID: "s2", RequirementID: "r2", WidthUsed: 40},
		{RollID: "s2", RequirementID: "r2", WidthUsed: 1},
	}
	_, err = m.CommitPlan(ctx, s, []string{"r2"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = m.CommitPlan(ctx, model.Suggestion{ID: "sug-2"}, []string{"nope"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemory_Plans(t *testing.T) {
	m := NewMemory(model.NewSequenceGenerator())
	ctx := context.Background()

	s := model.Suggestion{
		ID:   "sug-1",
		Spec: kraft,
		Jumbos: []model.Jumbo{{ID: "jumbo-1", Sets: []model.Set{
			{ID: "set-1", TargetWidth: 118, Cuts: []model.Cut{{ID: "cut-2", Width: 40}, {ID: "cut-3", Width: 38}}},
		}}},
		ExistingCuts: []model.Cut{{ID: "cut-1", Width: 20, UsesExisting: true}},
	}

	ref, err := m.SavePlan(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", ref.ID)
	assert.Equal(t, "sug-1", ref.SuggestionID)
	assert.Equal(t, 1, ref.JumboCount)
	assert.Equal(t, 3, ref.CutCount)
	assert.False(t, ref.CreatedAt.IsZero())

	refs, err := m.ListPlans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []PlanRef{ref}, refs)

	plan, err := m.GetPlan(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "cut-2", plan.Suggestion.Jumbos[0].Sets[0].Cuts[0].ID)

	_, err = m.GetPlan(ctx, "plan-404")
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.ErrorIs(t, m.PutPlan(ctx, plan), model.ErrInvalidInput, "plan ids are unique")
}
