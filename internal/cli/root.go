// Package cli implements the reelcut command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/piwi3910/ReelCut/internal/config"
	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/store/sqlite"
	"github.com/spf13/cobra"
)

// options carries the global flags and the configuration they resolve to.
type options struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg config.Config
	log *slog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "reelcut",
		Short: "Plan how jumbo paper rolls are slit into sets and cuts",
		Long: `ReelCut turns pending roll requirements into cutting suggestions: jumbo
rolls of up to three sets, each set filled with cuts by best-fit decreasing,
reusing partially used stock rolls first.`,
		Version:      "0.1.0",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.reelcut/config.json)")
	pf.StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newSuggestCmd(opts),
		newCompareCmd(opts),
		newServeCmd(opts),
		newMigrateCmd(opts),
		newLoadCmd(opts),
		newBackupCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	o.cfg = cfg
	o.log = cfg.NewLogger(cmd.ErrOrStderr())
	return nil
}

// openStore opens the configured database and brings its schema up to date.
func (o *options) openStore() (*sqlite.Store, error) {
	db, err := sqlite.Open(o.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if _, err := sqlite.Migrate(db, o.log); err != nil {
		db.Close()
		return nil, err
	}
	return sqlite.New(db, model.UUIDGenerator{}), nil
}
