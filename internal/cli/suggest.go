package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/piwi3910/ReelCut/internal/engine"
	"github.com/piwi3910/ReelCut/internal/importer"
	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/project"
	"github.com/spf13/cobra"
)

// inputFlags selects the planning input: a worksheet, or requirement and
// stock sheets.
type inputFlags struct {
	requirements string
	stock        string
	worksheet    string
	targetWidth  float64
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.requirements, "requirements", "", "requirements sheet (CSV or XLSX)")
	cmd.Flags().StringVar(&f.stock, "stock", "", "existing stock sheet (CSV or XLSX)")
	cmd.Flags().StringVar(&f.worksheet, "worksheet", "", "JSON worksheet with requirements, stock and settings")
	cmd.Flags().Float64Var(&f.targetWidth, "target-width", 0, "set width in inches (default from config)")
	cmd.MarkFlagsMutuallyExclusive("worksheet", "requirements")
	cmd.MarkFlagsMutuallyExclusive("worksheet", "stock")
}

type plannerInput struct {
	reqs     []model.PendingRequirement
	stock    []model.ExistingStockRoll
	settings model.Settings
}

func (o *options) loadInput(f inputFlags, ids model.IDGenerator) (plannerInput, error) {
	in := plannerInput{settings: o.cfg.Settings()}

	switch {
	case f.worksheet != "":
		ws, err := project.LoadWorksheet(f.worksheet)
		if err != nil {
			return in, err
		}
		in.reqs = ws.Pending()
		in.stock = ws.Stock
		if ws.Settings != nil {
			in.settings = ws.Settings.Normalized()
		}
	case f.requirements != "":
		reqs, err := o.importSheet(f.requirements, importer.Requirements, ids)
		if err != nil {
			return in, err
		}
		in.reqs = reqs.Requirements
		if f.stock != "" {
			rolls, err := o.importSheet(f.stock, importer.Stock, ids)
			if err != nil {
				return in, err
			}
			in.stock = rolls.Stock
		}
	default:
		return in, errors.New("one of --requirements or --worksheet is required")
	}

	if f.targetWidth > 0 {
		in.settings.TargetWidth = f.targetWidth
	}
	return in, nil
}

// importSheet imports one sheet, logging its warnings and failing on any row
// error.
func (o *options) importSheet(path string, kind importer.Kind, ids model.IDGenerator) (importer.ImportResult, error) {
	res := importer.ImportFile(path, kind, ids)
	for _, w := range res.Warnings {
		o.log.Debug("import warning", "file", path, "kind", kind.String(), "warning", w)
	}
	if err := res.Err(); err != nil {
		return res, fmt.Errorf("import %s from %s: %w", kind, path, err)
	}
	o.log.Info("imported", "file", path, "kind", kind.String(),
		"requirements", len(res.Requirements), "stock_rolls", len(res.Stock))
	return res, nil
}

func newSuggestCmd(opts *options) *cobra.Command {
	var (
		in   inputFlags
		view string
	)
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Generate cutting suggestions from requirement and stock sheets",
		Long: `Plan every requirement in the input and print the suggestions as JSON,
grouped by paper spec (--view spec) or by order (--view order).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if view != "spec" && view != "order" {
				return fmt.Errorf("unknown view %q, want spec or order", view)
			}
			ids := model.NewSequenceGenerator()
			input, err := opts.loadInput(in, ids)
			if err != nil {
				return err
			}

			result, err := engine.New(input.settings, ids).GenerateSuggestions(input.reqs, input.stock)
			if err != nil {
				return err
			}
			opts.log.Info("suggestions generated",
				"suggestions", len(result.Suggestions),
				"jumbos", result.Summary.TotalJumbos,
				"waste", result.Summary.TotalWaste)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if view == "order" {
				return enc.Encode(model.OrderView(result))
			}
			return enc.Encode(model.SpecView(result))
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&view, "view", "spec", "output shape: spec or order")
	return cmd
}
