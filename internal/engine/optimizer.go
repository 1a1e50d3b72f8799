package engine

import (
	"golang.org/x/sync/errgroup"

	"github.com/piwi3910/ReelCut/internal/model"
)

// Optimizer turns pending requirements into cutting suggestions.
type Optimizer struct {
	Settings model.Settings
	IDs      model.IDGenerator
}

// New returns an optimizer. A nil id generator falls back to random ids.
func New(settings model.Settings, ids model.IDGenerator) *Optimizer {
	if ids == nil {
		ids = model.UUIDGenerator{}
	}
	return &Optimizer{Settings: settings.Normalized(), IDs: ids}
}

// GenerateSuggestions plans one suggestion per paper spec. Requirements are
// grouped by spec, each group is packed against the stock rolls of the same
// spec, packed sets are assembled into jumbos and the groups are merged into
// a single result. Groups share no state and are packed concurrently when
// Settings.Parallel is set. The call performs no I/O.
//
// Any requirement wider than the target width fails the whole call with a
// *model.PackingError; nothing is dropped silently.
func (o *Optimizer) GenerateSuggestions(reqs []model.PendingRequirement, stock []model.ExistingStockRoll) (model.Result, error) {
	settings := o.Settings.Normalized()

	for _, r := range reqs {
		if err := r.Validate(); err != nil {
			return model.Result{}, err
		}
	}
	if err := CheckWidths(reqs, settings); err != nil {
		return model.Result{}, err
	}

	groups := buildGroups(reqs, stock)
	outputs := make([]groupOutput, len(groups))

	if settings.Parallel && len(groups) > 1 {
		var eg errgroup.Group
		for i := range groups {
			eg.Go(func() error {
				out, err := packGroup(groups[i], settings)
				outputs[i] = out
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return model.Result{}, err
		}
	} else {
		for i := range groups {
			out, err := packGroup(groups[i], settings)
			if err != nil {
				return model.Result{}, err
			}
			outputs[i] = out
		}
	}

	result := aggregate(outputs, settings.TargetWidth)
	assignIDs(&result, o.IDs)
	return result, nil
}

// packGroup runs the packer and assembler for one spec group.
func packGroup(g specGroup, settings model.Settings) (groupOutput, error) {
	packed, err := Pack(g.reqs, g.stock, settings)
	if err != nil {
		return groupOutput{}, err
	}
	reqIDs := make([]string, 0, len(g.reqs))
	for _, r := range g.reqs {
		reqIDs = append(reqIDs, r.ID)
	}
	return groupOutput{
		spec:   g.spec,
		reqIDs: reqIDs,
		packed: packed,
		jumbos: AssembleJumbos(packed.Sets),
	}, nil
}
