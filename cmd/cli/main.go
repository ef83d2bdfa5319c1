package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/cmd/cli/commands"
	"github.com/bandstand/rehearsal-scheduler/internal/config"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
	"github.com/bandstand/rehearsal-scheduler/pkg/postgres"
	"github.com/bandstand/rehearsal-scheduler/pkg/sqlite"
	"github.com/bandstand/rehearsal-scheduler/pkg/utils/logging"
)

var (
	env     string
	verbose bool
	app     *commands.AppContext
)

func main() {
	// Initialize empty app context (will be populated in PersistentPreRunE)
	app = &commands.AppContext{}

	rootCmd := &cobra.Command{
		Use:   "rehearsal",
		Short: "Rehearsal Scheduler CLI - Find, book and track rehearsals",
		Long: `A CLI tool for checking member availability, suggesting rehearsal slots,
resolving venue and member conflicts, and recording attendance.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: dev, test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs on the console")

	rootCmd.AddCommand(commands.FreeBusyCmd(app))
	rootCmd.AddCommand(commands.EstimateCmd(app))
	rootCmd.AddCommand(commands.CheckConflictsCmd(app))
	rootCmd.AddCommand(commands.SuggestCmd(app))
	rootCmd.AddCommand(commands.ProposeCmd(app))
	rootCmd.AddCommand(commands.ConfirmCmd(app))
	rootCmd.AddCommand(commands.CancelCmd(app))
	rootCmd.AddCommand(commands.RecordAttendanceCmd(app))
	rootCmd.AddCommand(commands.ViewAttendanceCmd(app))
	rootCmd.AddCommand(commands.ImportUnavailabilityCmd(app))
	rootCmd.AddCommand(commands.ImportGoogleBusyCmd(app))
	rootCmd.AddCommand(commands.ExportCalendarCmd(app))
	rootCmd.AddCommand(commands.MaintainCmd(app))
	rootCmd.AddCommand(commands.SeedCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	err := rootCmd.Execute()
	if err != nil && app.Logger != nil {
		app.Logger.Error("Command failed", zap.String("kind", model.ErrorKind(err)), zap.Error(err))
	}
	shutdown()

	if err != nil {
		os.Exit(1)
	}
}

// shutdown closes the database and flushes the logger. PersistentPostRun is
// skipped when a command fails, so this runs after Execute instead.
func shutdown() {
	if app.Database != nil {
		if err := app.Database.Close(); err != nil && app.Logger != nil {
			app.Logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	if app.Logger != nil {
		app.Logger.Sync()
	}
}

// initApp loads configuration, sets up the logger and opens the database
func initApp() error {
	var err error
	app.Ctx = context.Background()
	app.Env = env

	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app.Logger, err = logging.InitLogger(logging.Options{
		Env:     env,
		Dir:     app.Cfg.LogDir,
		Verbose: verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	app.Location, err = app.Cfg.Location()
	if err != nil {
		return err
	}

	app.Logger.Info("Connecting to database", zap.String("driver", app.Cfg.Database.Driver))
	app.Database, err = openDatabase(app.Ctx, app.Cfg.Database)
	if err != nil {
		return err
	}
	app.Logger.Debug("Database initialized successfully")

	return nil
}

// openDatabase connects to the configured backend and applies its migrations
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (db.Database, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := postgres.NewDB(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return pg, nil
	case "sqlite":
		lite, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
