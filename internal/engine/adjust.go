package engine

import (
	"fmt"
	"sync"

	"github.com/piwi3910/ReelCut/internal/model"
)

// Special values for AddCutRequest.SetID and AddCutRequest.JumboID.
const (
	// SetAuto places the cut in the tightest set with room, opening a new
	// set when none fits.
	SetAuto = ""
	// SetNew always opens a new set (or, as a jumbo id, a new jumbo).
	SetNew = "new"
)

var adjustEpsilon = model.DefaultSettings().Epsilon

// AddCutRequest describes an operator-specified cut.
type AddCutRequest struct {
	JumboID     string          `json:"jumbo_id"`
	SetID       string          `json:"set_id"`
	Width       float64         `json:"width"`
	Spec        model.PaperSpec `json:"spec"`
	OrderID     string          `json:"order_id,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Operation is a manual change to a suggestion.
type Operation interface {
	apply(s model.Suggestion, ids model.IDGenerator) (model.Suggestion, error)
}

// AddCutOp adds a cut. See AddCut.
type AddCutOp struct {
	AddCutRequest
}

func (op AddCutOp) apply(s model.Suggestion, ids model.IDGenerator) (model.Suggestion, error) {
	out, _, err := AddCut(s, op.AddCutRequest, ids)
	return out, err
}

// RemoveCutOp removes a cut. See RemoveCut.
type RemoveCutOp struct {
	CutID string `json:"cut_id"`
}

func (op RemoveCutOp) apply(s model.Suggestion, _ model.IDGenerator) (model.Suggestion, error) {
	return RemoveCut(s, op.CutID)
}

// Adjust applies op to a copy of s, bumps its version and returns the copy.
// s itself is never modified.
func Adjust(s model.Suggestion, op Operation, ids model.IDGenerator) (model.Suggestion, error) {
	if ids == nil {
		ids = model.UUIDGenerator{}
	}
	return op.apply(s, ids)
}

// AddCut inserts an operator cut into jumbo req.JumboID.
//
// With an explicit set id the cut goes into that set or fails with a SetFull
// CapacityError. With SetNew a new set is opened, failing with JumboFull when
// the jumbo already has three sets. With SetAuto the tightest set with room is
// used, then a new set, then JumboFull. A jumbo id of SetNew opens a new jumbo.
func AddCut(s model.Suggestion, req AddCutRequest, ids model.IDGenerator) (model.Suggestion, model.Cut, error) {
	if ids == nil {
		ids = model.UUIDGenerator{}
	}
	if req.Width <= 0 {
		return s, model.Cut{}, &model.InputError{Kind: model.InvalidWidth, Detail: fmt.Sprintf("cut width must be positive, got %g", req.Width)}
	}
	if !req.Spec.Equal(s.Spec) {
		return s, model.Cut{}, &model.InputError{Kind: model.SpecMismatch, Detail: fmt.Sprintf("cut spec %s does not match suggestion spec %s", req.Spec, s.Spec)}
	}
	if !model.FitsWidth(0, req.Width, s.TargetWidth, adjustEpsilon) {
		return s, model.Cut{}, &model.PackingError{Kind: model.RequirementTooWide, Width: req.Width, TargetWidth: s.TargetWidth}
	}

	out := s.Clone()
	cut := model.Cut{
		ID:          ids.NewID("cut"),
		Width:       req.Width,
		OrderID:     req.OrderID,
		Manual:      true,
		Description: req.Description,
	}
	if cut.Description == "" {
		cut.Description = fmt.Sprintf("manual %.2f\"", req.Width)
	}

	if req.JumboID == SetNew {
		out.Jumbos = append(out.Jumbos, model.Jumbo{
			ID:   ids.NewID("jumbo"),
			Sets: []model.Set{newSet(ids, s.TargetWidth, cut)},
		})
		return finishAdjust(out), cut, nil
	}

	ji := findJumbo(out, req.JumboID)
	if ji < 0 {
		return s, model.Cut{}, &model.NotFoundError{Kind: "jumbo", ID: req.JumboID}
	}
	jumbo := &out.Jumbos[ji]

	switch req.SetID {
	case SetNew:
		if len(jumbo.Sets) >= model.MaxSetsPerJumbo {
			return s, model.Cut{}, &model.CapacityError{Kind: model.JumboFull, JumboID: jumbo.ID, Width: req.Width}
		}
		jumbo.Sets = append(jumbo.Sets, newSet(ids, s.TargetWidth, cut))

	case SetAuto:
		best := -1
		bestRemaining := 0.0
		for i, set := range jumbo.Sets {
			if !model.FitsWidth(set.UsedWidth(), req.Width, set.TargetWidth, adjustEpsilon) {
				continue
			}
			remaining := set.TargetWidth - set.UsedWidth()
			if best < 0 || remaining < bestRemaining {
				best, bestRemaining = i, remaining
			}
		}
		switch {
		case best >= 0:
			jumbo.Sets[best].Cuts = append(jumbo.Sets[best].Cuts, cut)
		case len(jumbo.Sets) < model.MaxSetsPerJumbo:
			jumbo.Sets = append(jumbo.Sets, newSet(ids, s.TargetWidth, cut))
		default:
			return s, model.Cut{}, &model.CapacityError{Kind: model.JumboFull, JumboID: jumbo.ID, Width: req.Width}
		}

	default:
		si := -1
		for i, set := range jumbo.Sets {
			if set.ID == req.SetID {
				si = i
				break
			}
		}
		if si < 0 {
			return s, model.Cut{}, &model.NotFoundError{Kind: "set", ID: req.SetID}
		}
		set := &jumbo.Sets[si]
		if !model.FitsWidth(set.UsedWidth(), req.Width, set.TargetWidth, adjustEpsilon) {
			remaining := set.TargetWidth - set.UsedWidth()
			return s, model.Cut{}, &model.CapacityError{
				Kind:      model.SetFull,
				JumboID:   jumbo.ID,
				SetID:     set.ID,
				Width:     req.Width,
				Remaining: remaining,
			}
		}
		set.Cuts = append(set.Cuts, cut)
	}

	return finishAdjust(out), cut, nil
}

// RemoveCut deletes a cut from a set or from the existing-stock cuts. A set
// left without cuts is removed, as is a jumbo left without sets. Removing an
// existing-stock cut also drops its stock consumption.
func RemoveCut(s model.Suggestion, cutID string) (model.Suggestion, error) {
	out := s.Clone()

	for ji := range out.Jumbos {
		jumbo := &out.Jumbos[ji]
		for si := range jumbo.Sets {
			set := &jumbo.Sets[si]
			for ci, c := range set.Cuts {
				if c.ID != cutID {
					continue
				}
				set.Cuts = append(set.Cuts[:ci], set.Cuts[ci+1:]...)
				if len(set.Cuts) == 0 {
					jumbo.Sets = append(jumbo.Sets[:si], jumbo.Sets[si+1:]...)
				}
				if len(jumbo.Sets) == 0 {
					out.Jumbos = append(out.Jumbos[:ji], out.Jumbos[ji+1:]...)
				}
				return finishAdjust(out), nil
			}
		}
	}

	for ci, c := range out.ExistingCuts {
		if c.ID != cutID {
			continue
		}
		out.ExistingCuts = append(out.ExistingCuts[:ci], out.ExistingCuts[ci+1:]...)
		for i, cons := range out.Consumptions {
			if cons.CutID == cutID {
				out.Consumptions = append(out.Consumptions[:i], out.Consumptions[i+1:]...)
				break
			}
		}
		return finishAdjust(out), nil
	}

	return s, &model.NotFoundError{Kind: "cut", ID: cutID}
}

func newSet(ids model.IDGenerator, target float64, first model.Cut) model.Set {
	return model.Set{ID: ids.NewID("set"), TargetWidth: target, Cuts: []model.Cut{first}}
}

func findJumbo(s model.Suggestion, id string) int {
	for i, j := range s.Jumbos {
		if j.ID == id {
			return i
		}
	}
	return -1
}

func finishAdjust(s model.Suggestion) model.Suggestion {
	s.Version++
	s.Summary = RecomputeSummary(s)
	return s
}

// Session guards one suggestion shared by concurrent operators. Operations
// are applied one at a time against the latest state, and callers that pass
// a version must match the current one, so two edits based on the same view
// cannot both succeed.
type Session struct {
	mu      sync.Mutex
	current model.Suggestion
	ids     model.IDGenerator
}

// NewSession starts a session on a copy of s.
func NewSession(s model.Suggestion, ids model.IDGenerator) *Session {
	if ids == nil {
		ids = model.UUIDGenerator{}
	}
	return &Session{current: s.Clone(), ids: ids}
}

// Snapshot returns a copy of the current suggestion.
func (ss *Session) Snapshot() model.Suggestion {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.current.Clone()
}

// Version returns the current version.
func (ss *Session) Version() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.current.Version
}

// Apply runs op atomically. An expectedVersion of 0 skips the version check;
// any other value must equal the current version or ErrVersionConflict is
// returned. On error the suggestion is unchanged.
func (ss *Session) Apply(expectedVersion int, op Operation) (model.Suggestion, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if expectedVersion != 0 && expectedVersion != ss.current.Version {
		return ss.current.Clone(), fmt.Errorf("%w: have version %d, got %d", model.ErrVersionConflict, ss.current.Version, expectedVersion)
	}
	next, err := Adjust(ss.current, op, ss.ids)
	if err != nil {
		return ss.current.Clone(), err
	}
	ss.current = next
	return next.Clone(), nil
}
