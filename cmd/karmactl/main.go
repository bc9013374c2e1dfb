// Command karmactl runs the maintenance jobs of the reputation system:
// migrations, karma recomputation, counter repair and inspection.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/baraza/backend/internal/config"
	"github.com/emilythestrangee/baraza/backend/internal/counters"
	"github.com/emilythestrangee/baraza/backend/internal/database"
	"github.com/emilythestrangee/baraza/backend/internal/karma"
	"github.com/emilythestrangee/baraza/backend/internal/logging"
	"github.com/emilythestrangee/baraza/backend/internal/metrics"
	"github.com/emilythestrangee/baraza/backend/internal/retry"
	"github.com/emilythestrangee/baraza/backend/internal/votes"
)

const programName = "karmactl"

// app carries what every subcommand needs; it is filled in by the root
// command's PersistentPreRunE.
type app struct {
	envFile string
	debug   bool

	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	metrics *metrics.Metrics
}

func (a *app) setup() error {
	var files []string
	if a.envFile != "" {
		files = append(files, a.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Log.Level
	if a.debug {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == config.DriverSQLite {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	a.cfg, a.logger, a.db = cfg, logger.Named(programName), db
	a.metrics = metrics.New(nil)
	return nil
}

func (a *app) teardown() {
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) projection() *counters.Projection {
	return counters.NewProjection(a.db, a.logger, a.metrics)
}

func (a *app) aggregator() *karma.Aggregator {
	return karma.NewAggregator(a.db, a.cfg.Karma, a.logger, a.metrics)
}

func (a *app) ledger() *votes.Ledger {
	return votes.NewLedger(a.db, a.projection(),
		votes.WithRetryPolicy(retry.Policy{
			MaxAttempts:     a.cfg.Vote.MaxAttempts,
			ConflictRetries: a.cfg.Vote.ConflictRetries,
			InitialInterval: a.cfg.Vote.InitialBackoff,
			MaxInterval:     a.cfg.Vote.MaxBackoff,
		}),
		votes.WithLogger(a.logger),
		votes.WithMetrics(a.metrics),
	)
}

func newRootCommand() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Maintenance tool for votes, counters and karma",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().
		StringVar(&a.envFile, "env", "", "path to a .env file (default .env)")
	rootCmd.PersistentFlags().
		BoolVarP(&a.debug, "debug", "D", false, "enable debug logging")

	// Subcommands
	rootCmd.AddCommand(migrateCommand(a))
	rootCmd.AddCommand(recomputeCommand(a))
	rootCmd.AddCommand(inspectCommand(a))
	rootCmd.AddCommand(toggleCommand(a))
	rootCmd.AddCommand(reconcileCommand(a))
	rootCmd.AddCommand(tokenCommand(a))
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
