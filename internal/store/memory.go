package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/piwi3910/ReelCut/internal/model"
)

// Memory keeps requirements, stock rolls and plans in process memory. It is
// safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	reqs     []model.PendingRequirement
	reqIndex map[string]int
	stock    map[string]model.ExistingStockRoll
	plans    []Plan
	ids      model.IDGenerator
	now      func() time.Time
}

// NewMemory returns an empty store. A nil id generator falls back to random
// ids.
func NewMemory(ids model.IDGenerator) *Memory {
	if ids == nil {
		ids = model.UUIDGenerator{}
	}
	return &Memory{
		reqIndex: make(map[string]int),
		stock:    make(map[string]model.ExistingStockRoll),
		ids:      ids,
		now:      time.Now,
	}
}

// AddRequirements stores requirements. A requirement without a state is
// pending. Duplicate ids are rejected and nothing is stored.
func (m *Memory) AddRequirements(_ context.Context, reqs ...model.PendingRequirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reqs = slices.Clone(reqs)
	seen := make(map[string]bool, len(reqs))
	for i := range reqs {
		r := &reqs[i]
		if r.State == "" {
			r.State = model.StatePending
		}
		if err := r.Validate(); err != nil {
			return err
		}
		if !r.State.Valid() {
			return &model.InputError{Kind: model.InvalidRequirement, Detail: fmt.Sprintf("requirement %s: unknown state %q", r.ID, r.State)}
		}
		if _, dup := m.reqIndex[r.ID]; dup || seen[r.ID] {
			return &model.InputError{Kind: model.InvalidRequirement, Detail: fmt.Sprintf("duplicate requirement id %s", r.ID)}
		}
		seen[r.ID] = true
	}
	for _, r := range reqs {
		r.Spec = r.Spec.Normalize()
		m.reqIndex[r.ID] = len(m.reqs)
		m.reqs = append(m.reqs, r)
	}
	return nil
}

// ListRequirements returns every requirement in insertion order.
func (m *Memory) ListRequirements(_ context.Context) ([]model.PendingRequirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.PendingRequirement{}, m.reqs...), nil
}

// ListPending returns the pending requirements matching f in insertion order.
func (m *Memory) ListPending(_ context.Context, f Filter) ([]model.PendingRequirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.PendingRequirement{}
	for _, r := range m.reqs {
		if r.State == model.StatePending && f.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MarkInProduction moves the given requirements to in_production. Either all
// of them move or none do.
func (m *Memory) MarkInProduction(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkInProduction(ids); err != nil {
		return err
	}
	for _, id := range ids {
		m.reqs[m.reqIndex[id]].State = model.StateInProduction
	}
	return nil
}

// checkInProduction fails unless every id can move to in_production. The
// caller holds the lock.
func (m *Memory) checkInProduction(ids []string) error {
	for _, id := range ids {
		i, ok := m.reqIndex[id]
		if !ok {
			return &model.NotFoundError{Kind: "requirement", ID: id}
		}
		if !m.reqs[i].State.CanTransition(model.StateInProduction) {
			return fmt.Errorf("requirement %s: %w: %s -> %s", id, model.ErrInvalidTransition, m.reqs[i].State, model.StateInProduction)
		}
	}
	return nil
}

// AddStock stores stock rolls, replacing any roll with the same id.
func (m *Memory) AddStock(_ context.Context, rolls ...model.ExistingStockRoll) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rolls {
		if r.ID == "" {
			return &model.InputError{Kind: model.InvalidWidth, Detail: "stock roll needs an id"}
		}
		if r.Width <= 0 {
			return &model.InputError{Kind: model.InvalidWidth, Detail: fmt.Sprintf("stock roll %s: width must be positive, got %g", r.ID, r.Width)}
		}
		if err := r.Spec.Validate(); err != nil {
			return fmt.Errorf("stock roll %s: %w", r.ID, err)
		}
	}
	for _, r := range rolls {
		r.Spec = r.Spec.Normalize()
		m.stock[r.ID] = r
	}
	return nil
}

// ListStock returns every stock roll ordered by id.
func (m *Memory) ListStock(_ context.Context) ([]model.ExistingStockRoll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedStock(nil), nil
}

// ListExistingStock returns the rolls of the given spec ordered by id.
func (m *Memory) ListExistingStock(_ context.Context, spec model.PaperSpec) ([]model.ExistingStockRoll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedStock(&spec), nil
}

func (m *Memory) sortedStock(spec *model.PaperSpec) []model.ExistingStockRoll {
	out := []model.ExistingStockRoll{}
	for _, r := range m.stock {
		if spec == nil || spec.Equal(r.Spec) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Consume cuts widthUsed from a roll. The roll keeps the leftover width, or
// leaves stock when the leftover is narrower than model.MinRemnantWidth.
func (m *Memory) Consume(_ context.Context, rollID string, widthUsed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	roll, ok := m.stock[rollID]
	if !ok {
		return &model.NotFoundError{Kind: "roll", ID: rollID}
	}
	if err := checkConsume(roll, widthUsed); err != nil {
		return err
	}
	m.cut(roll, widthUsed)
	return nil
}

func checkConsume(roll model.ExistingStockRoll, widthUsed float64) error {
	if widthUsed <= 0 || !model.FitsWidth(0, widthUsed, roll.Width, model.DefaultSettings().Epsilon) {
		return &model.InputError{Kind: model.InvalidWidth, Detail: fmt.Sprintf("cannot use %.2f from roll %s of width %.2f", widthUsed, roll.ID, roll.Width)}
	}
	return nil
}

// cut applies a checked consumption. The caller holds the lock.
func (m *Memory) cut(roll model.ExistingStockRoll, widthUsed float64) {
	remaining, keep := RemainingAfter(roll, widthUsed)
	if !keep {
		delete(m.stock, roll.ID)
		return
	}
	roll.Width = remaining
	m.stock[roll.ID] = roll
}

// SavePlan records s as a committed plan.
func (m *Memory) SavePlan(ctx context.Context, s model.Suggestion) (PlanRef, error) {
	ref := NewPlanRef(m.ids.NewID("plan"), s, m.now())
	if err := m.PutPlan(ctx, Plan{Ref: ref, Suggestion: s}); err != nil {
		return PlanRef{}, err
	}
	return ref, nil
}

// CommitPlan moves requirementIDs to in_production, applies the
// suggestion's stock consumptions and records it as a plan. Every step is
// checked before any is applied, so nothing changes when one fails.
func (m *Memory) CommitPlan(_ context.Context, s model.Suggestion, requirementIDs []string) (PlanRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkInProduction(requirementIDs); err != nil {
		return PlanRef{}, err
	}
	// Rolls as they will be after the earlier consumptions of this plan.
	after := make(map[string]model.ExistingStockRoll)
	var retired []string
	for _, c := range s.Consumptions {
		roll, ok := after[c.RollID]
		if !ok {
			if roll, ok = m.stock[c.RollID]; !ok || slices.Contains(retired, c.RollID) {
				return PlanRef{}, fmt.Errorf("consume roll %s: %w", c.RollID, &model.NotFoundError{Kind: "roll", ID: c.RollID})
			}
		}
		if err := checkConsume(roll, c.WidthUsed); err != nil {
			return PlanRef{}, fmt.Errorf("consume roll %s: %w", c.RollID, err)
		}
		remaining, keep := RemainingAfter(roll, c.WidthUsed)
		if !keep {
			delete(after, c.RollID)
			retired = append(retired, c.RollID)
			continue
		}
		roll.Width = remaining
		after[c.RollID] = roll
	}
	p := Plan{Ref: NewPlanRef(m.ids.NewID("plan"), s, m.now()), Suggestion: s.Clone()}
	if err := m.checkPlanID(p.Ref.ID); err != nil {
		return PlanRef{}, err
	}

	for _, id := range requirementIDs {
		m.reqs[m.reqIndex[id]].State = model.StateInProduction
	}
	for _, id := range retired {
		delete(m.stock, id)
	}
	for id, roll := range after {
		m.stock[id] = roll
	}
	m.plans = append(m.plans, p)
	return p.Ref, nil
}

// PutPlan stores a plan under its existing reference.
func (m *Memory) PutPlan(_ context.Context, p Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkPlanID(p.Ref.ID); err != nil {
		return err
	}
	p.Suggestion = p.Suggestion.Clone()
	m.plans = append(m.plans, p)
	return nil
}

func (m *Memory) checkPlanID(id string) error {
	for _, existing := range m.plans {
		if existing.Ref.ID == id {
			return &model.InputError{Kind: model.InvalidRequirement, Detail: fmt.Sprintf("duplicate plan id %s", id)}
		}
	}
	return nil
}

// ListPlans returns plan references in commit order.
func (m *Memory) ListPlans(_ context.Context) ([]PlanRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PlanRef, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p.Ref)
	}
	return out, nil
}

// GetPlan returns a committed plan by id.
func (m *Memory) GetPlan(_ context.Context, id string) (Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plans {
		if p.Ref.ID == id {
			p.Suggestion = p.Suggestion.Clone()
			return p, nil
		}
	}
	return Plan{}, &model.NotFoundError{Kind: "plan", ID: id}
}
