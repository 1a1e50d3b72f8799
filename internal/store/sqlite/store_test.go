package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kraft = model.NewPaperSpec(120, 18, "natural")
	white = model.NewPaperSpec(100, 16, "white")
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "reelcut.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, err := Migrate(db, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	s := New(db, model.NewSequenceGenerator())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC) }
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.AddRequirements(ctx,
		model.PendingRequirement{ID: "r1", OrderID: "SO-1", Width: 40, Spec: kraft, Quantity: 3, Reason: "backorder"},
		model.PendingRequirement{ID: "r2", OrderID: "SO-2", Width: 38, Spec: kraft, Quantity: 2},
		model.PendingRequirement{ID: "r3", OrderID: "SO-1", Width: 50, Spec: model.PaperSpec{GSM: 100, BF: 16, Shade: " White"}, Quantity: 1},
		model.PendingRequirement{ID: "r4", OrderID: "SO-3", Width: 20, Spec: kraft, Quantity: 1, State: model.StateResolved},
	))
	require.NoError(t, s.AddStock(ctx,
		model.ExistingStockRoll{ID: "s2", Width: 45, Spec: kraft, Source: "return"},
		model.ExistingStockRoll{ID: "s1", Width: 60, Spec: kraft},
		model.ExistingStockRoll{ID: "w1", Width: 30, Spec: white},
	))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	version, err := Migrate(s.db, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestPragmasOnEveryConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var conns []*sql.Conn
	for i := 0; i < 3; i++ {
		conn, err := s.db.Conn(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		conns = append(conns, conn)
	}
	for i, conn := range conns {
		var fk, timeout int
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
		assert.Equal(t, 1, fk, "connection %d", i)
		assert.Equal(t, 5000, timeout, "connection %d", i)
	}
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn("a.db"))
	assert.Equal(t, "file:a.db?mode=ro&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn("file:a.db?mode=ro"))
}

func TestListPending(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	all, err := s.ListPending(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].ID)
	assert.Equal(t, "backorder", all[0].Reason)
	assert.Equal(t, model.StatePending, all[0].State)
	assert.Equal(t, kraft, all[0].Spec)

	byOrder, err := s.ListPending(ctx, store.Filter{OrderIDs: []string{"SO-1", "SO-3"}})
	require.NoError(t, err)
	assert.Len(t, byOrder, 2)

	spec := model.PaperSpec{GSM: 100, BF: 16, Shade: "WHITE"}
	bySpec, err := s.ListPending(ctx, store.Filter{Spec: &spec})
	require.NoError(t, err)
	require.Len(t, bySpec, 1)
	assert.Equal(t, "r3", bySpec[0].ID)

	everything, err := s.ListRequirements(ctx)
	require.NoError(t, err)
	assert.Len(t, everything, 4)
}

func TestAddRequirementsDuplicateRollsBack(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	err := s.AddRequirements(ctx,
		model.PendingRequirement{ID: "r9", OrderID: "SO-9", Width: 10, Spec: kraft, Quantity: 1},
		model.PendingRequirement{ID: "r1", OrderID: "SO-9", Width: 10, Spec: kraft, Quantity: 1},
	)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	all, err := s.ListRequirements(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestMarkInProduction(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.MarkInProduction(ctx, []string{"r1", "r2"}))
	pending, err := s.ListPending(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	err = s.MarkInProduction(ctx, []string{"r3", "r4"})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	pending, err = s.ListPending(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, pending, 1, "r3 stays pending when the batch fails")

	assert.ErrorIs(t, s.MarkInProduction(ctx, []string{"missing"}), model.ErrNotFound)
}

func TestStockAndConsume(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	rolls, err := s.ListExistingStock(ctx, kraft)
	require.NoError(t, err)
	require.Len(t, rolls, 2)
	assert.Equal(t, "s1", rolls[0].ID)
	assert.Equal(t, "return", rolls[1].Source)

	require.NoError(t, s.Consume(ctx, "s1", 40))
	require.NoError(t, s.Consume(ctx, "s2", 40))

	rolls, err = s.ListExistingStock(ctx, kraft)
	require.NoError(t, err)
	require.Len(t, rolls, 1)
	assert.Equal(t, "s1", rolls[0].ID)
	assert.InDelta(t, 20.0, rolls[0].Width, 1e-9)

	assert.ErrorIs(t, s.Consume(ctx, "s2", 1), model.ErrNotFound)
	assert.ErrorIs(t, s.Consume(ctx, "w1", 31), model.ErrInvalidInput)

	// Re-adding a roll replaces it.
	require.NoError(t, s.AddStock(ctx, model.ExistingStockRoll{ID: "w1", Width: 70, Spec: white}))
	all, err := s.ListStock(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 70.0, all[1].Width)
}

func TestCommitPlan(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	sug := model.Suggestion{
		ID:           "sug-1",
		Spec:         kraft,
		TargetWidth:  118,
		ExistingCuts: []model.Cut{{ID: "cut-1", Width: 40, OrderID: "SO-1", RequirementID: "r1", UsesExisting: true, SourceRollID: "s1"}},
		Consumptions: []model.StockConsumption{{RollID: "s1", RequirementID: "r1", CutID: "cut-1", WidthUsed: 40, Remainder: 20}},
	}
	ref, err := s.CommitPlan(ctx, sug, []string{"r1"})
	require.NoError(t, err)
	assert.Equal(t, 1, ref.CutCount)

	pending, err := s.ListPending(ctx, store.Filter{OrderIDs: []string{"SO-1"}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r3", pending[0].ID)
	rolls, err := s.ListExistingStock(ctx, kraft)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, rolls[0].Width, 1e-9)
}

func TestCommitPlanRollsBack(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	// s2 holds 45", the second consumption cannot be served.
	sug := model.Suggestion{
		ID:   "sug-1",
		Spec: kraft,
		Consumptions: []model.StockConsumption{
			{RollID: "s1", RequirementID: "r1", WidthUsed: 40},
			{RollID: "s2", RequirementID: "r2", WidthUsed: 50},
		},
	}
	_, err := s.CommitPlan(ctx, sug, []string{"r1", "r2"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	pending, err := s.ListPending(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, pending, 3)
	rolls, err := s.ListExistingStock(ctx, kraft)
	require.NoError(t, err)
	require.Len(t, rolls, 2)
	assert.Equal(t, 60.0, rolls[0].Width)
	plans, err := s.ListPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestPlans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sug := model.Suggestion{
		ID:          "sug-1",
		Spec:        kraft,
		TargetWidth: 118,
		Version:     2,
		Jumbos: []model.Jumbo{{ID: "jumbo-1", Sets: []model.Set{
			{ID: "set-1", TargetWidth: 118, Cuts: []model.Cut{
				{ID: "cut-2", Width: 40, OrderID: "SO-1", RequirementID: "r1"},
				{ID: "cut-3", Width: 38, OrderID: "SO-2", RequirementID: "r2"},
			}},
		}}},
		ExistingCuts: []model.Cut{{ID: "cut-1", Width: 40, OrderID: "SO-1", RequirementID: "r1", UsesExisting: true, SourceRollID: "s1"}},
		Consumptions: []model.StockConsumption{{RollID: "s1", RequirementID: "r1", CutID: "cut-1", WidthUsed: 40, Remainder: 20}},
	}

	ref, err := s.SavePlan(ctx, sug)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", ref.ID)
	assert.Equal(t, 3, ref.CutCount)

	refs, err := s.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, ref, refs[0])

	plan, err := s.GetPlan(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, sug, plan.Suggestion)
	assert.True(t, plan.Ref.CreatedAt.Equal(ref.CreatedAt))

	cuts, err := s.OrderCuts(ctx, "SO-1")
	require.NoError(t, err)
	require.Len(t, cuts, 2)
	assert.Equal(t, "cut-1", cuts[0].ID)
	assert.True(t, cuts[0].UsesExisting)
	assert.Equal(t, "s1", cuts[0].SourceRollID)

	_, err = s.GetPlan(ctx, "plan-404")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.PutPlan(ctx, plan), model.ErrInvalidInput)
}
