package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odoodrift/odoodrift/pkg/telemetry"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	jsonOutput  bool
	stateDBPath string
)

// Execute runs the root command. It wires up the telemetry stack (structured
// logging, tracing, metrics, events) for the lifetime of the invocation and
// makes it available to every subcommand via the context.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

// newTelemetry builds the process-wide telemetry instance. Tracing defaults
// to the "none" exporter so a plain CLI invocation never tries to dial an
// OTLP collector; --verbose raises the log level to debug.
func newTelemetry(version string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "odoodrift"
	cfg.ServiceVersion = version
	cfg.Tracing.Exporter = "none"
	cfg.Metrics.Enabled = false
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return telemetry.NewTelemetry(cfg)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "odoodrift",
		Short: "odoodrift - declarative state management for Odoo",
		Long: `odoodrift compares a desired record state against a live Odoo server,
produces a dependency-ordered execution plan of creates/updates/deletes, and
applies it with per-operation outcome reporting.

Commands:
  - login/logout: authenticate against an Odoo server
  - plan: diff desired state against actual state and build an execution plan
  - apply: execute a plan against the live server
  - drift: re-run the comparator against current live state
  - dev: watch a desired-state file and replan on every change`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			tel, err := newTelemetry(version)
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			cmd.SetContext(tel.WithContext(cmd.Context()))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if tel := telemetry.FromTelemetryContext(cmd.Context()); tel != nil {
				return tel.Shutdown(cmd.Context())
			}
			return nil
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the desired-state document")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&stateDBPath, "state-db", "./data/odoodrift.db", "path to the local session/plan history database")

	// Add subcommands
	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newLogoutCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDriftCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}
