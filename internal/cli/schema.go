/*
PURPOSE:
  Defines the 'schema' subcommand.
  Prints the log columns a curriculum will produce.

REQUIREMENTS:
  User-specified:
  - Inspect the log format before running a long session.

  Implementation-discovered:
  - Useful validation step before full run (also validates the curriculum file).

ARCHITECTURE INTEGRATION:
  - Calls: internal/curriculum.Load(), internal/schema.Build()

ERROR HANDLING:
  - Returns error if the curriculum cannot be loaded.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  forest-trainer schema --curriculum lessons.yaml [--header]

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/schema/schema.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"encoding/csv"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/forest-trainer/internal/curriculum"
	"github.com/daryltucker/forest-trainer/internal/schema"
)

func newSchemaCmd() *cobra.Command {
	var header bool

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the log columns of a curriculum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			c, err := curriculum.Load(cfg.Curriculum)
			if err != nil {
				return err
			}
			cols := schema.Build(c.Current()).Columns()

			if header {
				w := csv.NewWriter(cmd.OutOrStdout())
				if err := w.Write(cols); err != nil {
					return err
				}
				w.Flush()
				return w.Error()
			}
			for _, col := range cols {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), col); err != nil {
					return err
				}
			}
			return nil
		},
	}

	schemaCmd.Flags().StringP("curriculum", "c", "", "Curriculum file (.yaml, .yml or .toml)")
	schemaCmd.Flags().BoolVar(&header, "header", false, "Print the columns as a single CSV header row")
	return schemaCmd
}
