package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/piwi3910/ReelCut/internal/engine"
	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/spf13/cobra"
)

func newCompareCmd(opts *options) *cobra.Command {
	var (
		in     inputFlags
		widths []float64
		evolve bool
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare waste across candidate set widths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := opts.loadInput(in, model.NewSequenceGenerator())
			if err != nil {
				return err
			}
			if len(widths) == 0 {
				widths = opts.cfg.CompareWidths
			}

			scenarios := engine.BuildWidthScenarios(input.settings, widths)
			if evolve {
				scenarios = engine.WithEvolved(scenarios)
			}
			results := engine.CompareScenarios(scenarios, input.reqs, input.stock)
			best := engine.BestScenario(results)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCENARIO\tSETS\tJUMBOS\tMIN JUMBOS\tWASTE %\t")
			for i, r := range results {
				name := r.Scenario.Name
				if i == best {
					name += " *"
				}
				if r.Err != nil {
					fmt.Fprintf(w, "%s\t-\t-\t%d\terror: %v\t\n", name, r.Estimate.JumbosNeededMin, r.Err)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f\t\n",
					name, r.SetsUsed, r.JumbosUsed, r.Estimate.JumbosNeededMin, r.WastePercent)
			}
			return w.Flush()
		},
	}
	in.register(cmd)
	cmd.Flags().Float64SliceVar(&widths, "widths", nil, "candidate set widths, e.g. 110,118,126 (default from config)")
	cmd.Flags().BoolVar(&evolve, "evolve", false, "also try each width with the evolutionary set search")
	return cmd
}
