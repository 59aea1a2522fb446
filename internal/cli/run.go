/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes one training session.

REQUIREMENTS:
  User-specified:
  - Run the training command against the curriculum.
  - Specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag/env overrides to config.
  - Arguments after `--` replace the configured training command.
  - Ctrl-C stops the session between iterations; rows already written stay.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if config load fails or the session aborts.

IMPLEMENTATION RULES:
  - Logic: Load Config -> Override -> Engine.Run.

USAGE:
  forest-trainer run -o ./runs --curriculum lessons.yaml -- python train.py

SELF-HEALING INSTRUCTIONS:
  - Check flag names match flagKeys in root.go.

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daryltucker/forest-trainer/internal/engine"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [flags] [-- command [args...]]",
		Short: "Run a training session",
		Long: `Runs one training session. The process follows a strict protocol:
1. Schema: the log columns are fixed from the curriculum's first program.
2. Training: for every iteration the command receives the activities as JSON on
   stdin (and as FOREST_ACTIVITY_<NAME> env vars) and prints a JSON object of
   results on its last stdout line.
3. Recording: results are evaluated against the objectives and appended to
   <output-dir>/<YYYYMMDD-HHMMSS>.csv, optionally with a chart and a journal.

The output directory must already exist.`,
		Example: `  # Run with defaults (uses trainer.yaml)
  forest-trainer run

  # Override the curriculum and output directory
  forest-trainer run --curriculum lessons.toml -o ./runs -- python train.py

  # Smoke test the first three iterations with a chart
  forest-trainer run --max-iterations 3 --visualize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. Load Config
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// 2. Overrides
			if len(args) > 0 {
				cfg.Command = args
			}

			// 3. Execution
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run, err := engine.Run(ctx, cfg)
			if run != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "iterations: %d\nlog: %s\n", len(run.Records()), run.LogPath)
				if cfg.Visualize && len(run.Records()) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "chart: %s\n", run.ImagePath)
				}
				if run.JournalPath != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "journal: %s\n", run.JournalPath)
				}
			}
			return err
		},
	}

	f := runCmd.Flags()
	f.StringP("output-dir", "o", "", "Existing directory for the log, chart and journal")
	f.StringP("name", "n", "", "Session name")
	f.StringP("curriculum", "c", "", "Curriculum file (.yaml, .yml or .toml)")
	f.Duration("step-timeout", 0, "Timeout of a single training step (0 = none)")
	f.Int("max-retries", 0, "Attempts per training step")
	f.Int("max-iterations", 0, "Stop after this many iterations (0 = whole curriculum)")
	f.Bool("visualize", false, "Render <stamp>.png after every iteration")
	f.Bool("journal", false, "Also write every iteration to <stamp>.jsonl")
	f.Bool("host-stats", false, "Record host CPU/memory usage in the journal")
	f.Bool("legacy-rows", false, "Omit cells of unmeasured objectives (historical layout)")

	return runCmd
}
