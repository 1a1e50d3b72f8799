package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/planner"
	"github.com/piwi3910/ReelCut/internal/server"
	"github.com/piwi3910/ReelCut/internal/store/sqlite"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the planning API backed by the SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = opts.cfg.Addr
			}
			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc := planner.New(planner.Deps{
				Requirements: st,
				Inventory:    st,
				Plans:        st,
				Settings:     opts.cfg.Settings(),
				IDs:          model.UUIDGenerator{},
				Logger:       opts.log,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(svc, opts.log).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sqlite.Open(opts.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			version, err := sqlite.Migrate(db, opts.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", opts.cfg.DBPath, version)
			return nil
		},
	}
}
