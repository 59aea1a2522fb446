/*
PURPOSE:
  Defines the root Cobra command for the Forest Trainer CLI.
  Handles global flags, config loading and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Precedence: flags > FOREST_* env > config file > defaults.
  - Commands are built by constructors so tests get fresh flag state.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/forest-trainer/main.go
  - Calls: Child commands (run, schema, export)
  - Uses: internal/config, internal/output

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to newRootCmd() and flagKeys.

RELATED FILES:
  - cmd/forest-trainer/main.go
  - internal/config/config.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/daryltucker/forest-trainer/internal/config"
	"github.com/daryltucker/forest-trainer/internal/output"
)

// flagKeys maps flag names to config keys for the viper overlay.
var flagKeys = map[string]string{
	"output-dir":     config.KeyOutputDir,
	"name":           config.KeySessionName,
	"curriculum":     config.KeyCurriculum,
	"step-timeout":   config.KeyStepTimeout,
	"max-retries":    config.KeyMaxRetries,
	"max-iterations": config.KeyMaxIterations,
	"visualize":      config.KeyVisualize,
	"journal":        config.KeyJournal,
	"host-stats":     config.KeyHostStats,
	"legacy-rows":    config.KeyLegacyRows,
	"log-level":      config.KeyLogLevel,
	"log-format":     config.KeyLogFormat,
}

// Execute executes the root command.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forest-trainer",
		Short: "Curriculum-driven training loop with durable per-iteration logs",
		Long: `Runs a training command once per curriculum iteration, evaluates its results
against the curriculum objectives and logs every iteration as a CSV row.
Use 'run --help' for training options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default is ./trainer.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json")

	rootCmd.AddCommand(
		newRunCmd(),
		newSchemaCmd(),
		newExportCmd(),
	)
	return rootCmd
}

// loadConfig loads the config file, overlays env vars and changed flags,
// installs the configured logger and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	v := config.NewViper()
	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}
	cfg.Overlay(v)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	output.SetLogger(output.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format))
	return cfg, nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}
