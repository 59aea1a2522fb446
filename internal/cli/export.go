/*
PURPOSE:
  Defines the 'export' subcommand.
  Rebuilds a CSV log from a session journal.

REQUIREMENTS:
  User-specified:
  - Recover a log (or produce a legacy-layout copy) from the journal.

  Implementation-discovered:
  - Columns come from the first journal entry, as they do during training.
  - The target file is replaced atomically.

ARCHITECTURE INTEGRATION:
  - Calls: internal/output.ReadJournal(), internal/output.WriteCSV()
  - Uses: internal/schema

ERROR HANDLING:
  - Returns error for unreadable or empty journals and failed writes.

IMPLEMENTATION RULES:
  - Never append: the output is always a complete rewrite.

USAGE:
  forest-trainer export runs/20240301-123045.jsonl rebuilt.csv [--legacy-rows]

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/output/json.go
  - internal/output/csv.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/forest-trainer/internal/model"
	"github.com/daryltucker/forest-trainer/internal/output"
	"github.com/daryltucker/forest-trainer/internal/schema"
)

func newExportCmd() *cobra.Command {
	var legacy bool

	exportCmd := &cobra.Command{
		Use:   "export <journal.jsonl> <log.csv>",
		Short: "Rebuild a CSV log from a session journal",
		Long: `Rebuilds a CSV log from a JSON Lines journal written with --journal.
The columns are derived from the first journal entry, exactly as during training.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}

			entries, err := output.ReadJournal(args[0])
			if err != nil {
				return fmt.Errorf("failed to read journal: %w", err)
			}
			if len(entries) == 0 {
				return errors.New("journal has no entries")
			}

			first := entries[0]
			s := schema.Build(model.Program{Activities: first.Activities, Objectives: first.Objectives})
			records := make([]model.Record, len(entries))
			for i, e := range entries {
				records[i] = e.Record
			}

			var opts []output.CSVOption
			if legacy {
				opts = append(opts, output.WithLegacyRows())
			}
			if err := output.WriteCSV(args[1], s, records, opts...); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[1], err)
			}

			output.Logger.Info("Export complete", "rows", len(records), "path", args[1])
			return nil
		},
	}

	exportCmd.Flags().BoolVar(&legacy, "legacy-rows", false, "Omit cells of unmeasured objectives (historical layout)")
	return exportCmd
}
