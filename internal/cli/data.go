package cli

import (
	"fmt"
	"time"

	"github.com/piwi3910/ReelCut/internal/importer"
	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/project"
	"github.com/spf13/cobra"
)

func newLoadCmd(opts *options) *cobra.Command {
	var requirements, stock string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load requirement and stock sheets into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if requirements == "" && stock == "" {
				return fmt.Errorf("nothing to load: pass --requirements and/or --stock")
			}
			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ids := model.UUIDGenerator{}
			ctx := cmd.Context()
			if requirements != "" {
				res, err := opts.importSheet(requirements, importer.Requirements, ids)
				if err != nil {
					return err
				}
				if err := st.AddRequirements(ctx, res.Requirements...); err != nil {
					return fmt.Errorf("failed to store requirements: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d requirements\n", len(res.Requirements))
			}
			if stock != "" {
				res, err := opts.importSheet(stock, importer.Stock, ids)
				if err != nil {
					return err
				}
				if err := st.AddStock(ctx, res.Stock...); err != nil {
					return fmt.Errorf("failed to store stock: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d stock rolls\n", len(res.Stock))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&requirements, "requirements", "", "requirements sheet (CSV or XLSX)")
	cmd.Flags().StringVar(&stock, "stock", "", "existing stock sheet (CSV or XLSX)")
	return cmd
}

func newBackupCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import all data as JSON",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export FILE",
		Short: "Write every requirement, stock roll and plan to FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			data, err := project.Collect(cmd.Context(), st, time.Now())
			if err != nil {
				return err
			}
			if err := project.ExportAllData(args[0], data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d requirements, %d stock rolls, %d plans to %s\n",
				len(data.Requirements), len(data.Stock), len(data.Plans), args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Merge a backup into the database, skipping ids already present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := project.ImportAllData(args[0])
			if err != nil {
				return err
			}
			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := project.Restore(cmd.Context(), st, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d requirements, %d stock rolls, %d plans (%d skipped)\n",
				stats.Requirements, stats.Stock, stats.Plans, stats.Skipped)
			return nil
		},
	})
	return cmd
}
