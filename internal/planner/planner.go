// Package planner connects the optimizer to the requirement, inventory and
// plan stores: it lists pending work, produces suggestions, keeps them
// editable and commits them to production.
package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/piwi3910/ReelCut/internal/engine"
	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/store"
)

// ErrCommitted is returned when a committed suggestion is edited or
// committed again.
var ErrCommitted = errors.New("suggestion already committed")

// RequirementStore lists order requirements.
type RequirementStore interface {
	ListPending(ctx context.Context, f store.Filter) ([]model.PendingRequirement, error)
}

// InventoryStore lists partially used rolls.
type InventoryStore interface {
	ListExistingStock(ctx context.Context, spec model.PaperSpec) ([]model.ExistingStockRoll, error)
}

// PlanStore records committed suggestions. CommitPlan must move the
// requirements to in_production, consume the suggestion's stock and save the
// plan as one unit: either everything is applied or nothing is.
type PlanStore interface {
	CommitPlan(ctx context.Context, s model.Suggestion, requirementIDs []string) (store.PlanRef, error)
}

// Deps wires a Service.
type Deps struct {
	Requirements RequirementStore
	Inventory    InventoryStore
	Plans        PlanStore
	Settings     model.Settings
	IDs          model.IDGenerator
	Logger       *slog.Logger
	// MaxSessions bounds the open suggestions kept in memory. The oldest are
	// dropped first. Zero means DefaultMaxSessions.
	MaxSessions int
}

// DefaultMaxSessions is the open-suggestion limit used when Deps leaves it
// unset.
const DefaultMaxSessions = 256

// Service runs the suggestion workflow. Suggestions live in memory until
// committed or evicted; each is guarded by its own engine.Session. Only the
// plan reference of a committed suggestion is kept.
type Service struct {
	reqs     RequirementStore
	inv      InventoryStore
	plans    PlanStore
	settings model.Settings
	ids      model.IDGenerator
	log      *slog.Logger

	mu          sync.RWMutex
	sessions    map[string]*engine.Session
	order       []string // session ids, oldest first
	maxSessions int
	committed   map[string]store.PlanRef
}

// New returns a Service. Missing ids and logger fall back to random ids and
// a discarding logger.
func New(d Deps) *Service {
	if d.IDs == nil {
		d.IDs = model.UUIDGenerator{}
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.MaxSessions <= 0 {
		d.MaxSessions = DefaultMaxSessions
	}
	return &Service{
		reqs:      d.Requirements,
		inv:       d.Inventory,
		plans:     d.Plans,
		settings:  d.Settings.Normalized(),
		ids:       d.IDs,
		log:       d.Logger,
		sessions:    make(map[string]*engine.Session),
		maxSessions: d.MaxSessions,
		committed:   make(map[string]store.PlanRef),
	}
}

// Settings returns the optimizer settings in use.
func (s *Service) Settings() model.Settings {
	return s.settings
}

// Pending lists the pending requirements matching f.
func (s *Service) Pending(ctx context.Context, f store.Filter) ([]model.PendingRequirement, error) {
	reqs, err := s.reqs.ListPending(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list pending requirements: %w", err)
	}
	return reqs, nil
}

// Suggest plans the pending requirements matching f against the existing
// stock of their specs. Every suggestion in the result stays editable until
// it is committed.
func (s *Service) Suggest(ctx context.Context, f store.Filter) (model.Result, error) {
	reqs, err := s.Pending(ctx, f)
	if err != nil {
		return model.Result{}, err
	}

	var stock []model.ExistingStockRoll
	for _, g := range engine.GroupBySpec(reqs) {
		rolls, err := s.inv.ListExistingStock(ctx, g.Spec)
		if err != nil {
			return model.Result{}, fmt.Errorf("list stock for %s: %w", g.Spec, err)
		}
		stock = append(stock, rolls...)
	}

	result, err := engine.New(s.settings, s.ids).GenerateSuggestions(reqs, stock)
	if err != nil {
		s.log.Warn("suggestion failed", "requirements", len(reqs), "error", err)
		return model.Result{}, err
	}

	s.mu.Lock()
	for _, sug := range result.Suggestions {
		s.sessions[sug.ID] = engine.NewSession(sug, s.ids)
		s.order = append(s.order, sug.ID)
	}
	evicted := s.evictLocked()
	s.mu.Unlock()
	if evicted > 0 {
		s.log.Debug("suggestions evicted", "count", evicted, "open", s.maxSessions)
	}

	s.log.Info("suggestions generated",
		"requirements", len(reqs),
		"stock_rolls", len(stock),
		"suggestions", len(result.Suggestions),
		"jumbos", result.Summary.TotalJumbos,
		"sets", result.Summary.TotalSets,
		"waste", result.Summary.TotalWaste,
	)
	return result, nil
}

// evictLocked drops the oldest open suggestions beyond the limit and returns
// how many went. The caller holds s.mu.
func (s *Service) evictLocked() int {
	evicted := 0
	for len(s.sessions) > s.maxSessions && len(s.order) > 0 {
		id := s.order[0]
		s.order = s.order[1:]
		if _, reserved := s.committed[id]; reserved {
			// A commit in flight keeps its session.
			s.order = append(s.order, id)
			continue
		}
		delete(s.sessions, id)
		evicted++
	}
	return evicted
}

// session returns the open suggestion id. A committed suggestion yields
// ErrCommitted.
func (s *Service) session(id string) (*engine.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ref, done := s.committed[id]; done && ref.ID != "" {
		return nil, fmt.Errorf("%w: %s as plan %s", ErrCommitted, id, ref.ID)
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "suggestion", ID: id}
	}
	return sess, nil
}

// Suggestion returns the current state of an open suggestion.
func (s *Service) Suggestion(id string) (model.Suggestion, error) {
	sess, err := s.session(id)
	if err != nil {
		return model.Suggestion{}, err
	}
	return sess.Snapshot(), nil
}

// Adjust applies a manual operation to a suggestion. expectedVersion must
// match the suggestion's version unless it is 0.
func (s *Service) Adjust(_ context.Context, id string, expectedVersion int, op engine.Operation) (model.Suggestion, error) {
	sess, err := s.session(id)
	if err != nil {
		return model.Suggestion{}, err
	}
	if _, done := s.committedRef(id); done {
		return model.Suggestion{}, fmt.Errorf("%w: %s", ErrCommitted, id)
	}
	out, err := sess.Apply(expectedVersion, op)
	if err != nil {
		s.log.Debug("adjustment rejected", "suggestion", id, "version", expectedVersion, "error", err)
		return model.Suggestion{}, err
	}
	s.log.Info("suggestion adjusted", "suggestion", id, "version", out.Version, "waste", out.Summary.TotalWaste)
	return out, nil
}

func (s *Service) committedRef(id string) (store.PlanRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.committed[id]
	return ref, ok
}

// Commit sends a suggestion to production: its requirements move to
// in_production, its stock consumptions are applied and the plan is saved.
// A suggestion can be committed once; afterwards it leaves memory and every
// call naming it returns ErrCommitted. A failed commit changes nothing and
// the suggestion stays editable.
func (s *Service) Commit(ctx context.Context, id string) (store.PlanRef, error) {
	sess, err := s.session(id)
	if err != nil {
		return store.PlanRef{}, err
	}

	s.mu.Lock()
	if _, done := s.committed[id]; done {
		s.mu.Unlock()
		return store.PlanRef{}, fmt.Errorf("%w: %s", ErrCommitted, id)
	}
	// Reserve the id so a concurrent commit fails fast.
	s.committed[id] = store.PlanRef{}
	s.mu.Unlock()

	sug := sess.Snapshot()
	ref, err := s.commit(ctx, sug)
	s.mu.Lock()
	if err != nil {
		delete(s.committed, id)
	} else {
		s.committed[id] = ref
		delete(s.sessions, id)
		s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Error("commit failed", "suggestion", id, "error", err)
		return store.PlanRef{}, err
	}

	s.log.Info("suggestion committed",
		"suggestion", id,
		"plan", ref.ID,
		"requirements", len(s.requirementIDs(sug)),
		"cuts", ref.CutCount,
	)
	return ref, nil
}

func (s *Service) commit(ctx context.Context, sug model.Suggestion) (store.PlanRef, error) {
	ref, err := s.plans.CommitPlan(ctx, sug, s.requirementIDs(sug))
	if err != nil {
		return store.PlanRef{}, fmt.Errorf("commit plan: %w", err)
	}
	return ref, nil
}

// requirementIDs lists the requirements a suggestion still serves. Manual
// edits may have removed every cut of a requirement; such requirements stay
// pending.
func (s *Service) requirementIDs(sug model.Suggestion) []string {
	served := make(map[string]bool)
	for _, c := range sug.ExistingCuts {
		served[c.RequirementID] = true
	}
	for _, j := range sug.Jumbos {
		for _, set := range j.Sets {
			for _, c := range set.Cuts {
				served[c.RequirementID] = true
			}
		}
	}
	ids := make([]string, 0, len(sug.RequirementIDs))
	for _, id := range sug.RequirementIDs {
		if served[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Committed returns the plan a suggestion was committed as.
func (s *Service) Committed(id string) (store.PlanRef, bool) {
	ref, ok := s.committedRef(id)
	return ref, ok && ref.ID != ""
}

// ResultFor wraps a single suggestion as a result so it can be rendered by
// the spec and order views.
func ResultFor(sug model.Suggestion) model.Result {
	return model.Result{
		Status:      engine.StatusSuccess,
		TargetWidth: sug.TargetWidth,
		Suggestions: []model.Suggestion{sug},
		Summary:     sug.Summary,
	}
}
