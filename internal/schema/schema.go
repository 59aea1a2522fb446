/*
PURPOSE:
  Builds the fixed column layout of a training log from the curriculum's
  first program and encodes records against it.

REQUIREMENTS:
  User-specified:
  - Columns: id, time_start, time_stop, time_diff, then <activity>_activity,
    <objective>_objective, <objective>_result, <objective>_evaluation.
  - The layout is a public log-format contract. Do not reorder.

  Implementation-discovered:
  - Programs whose activity/objective names differ from the schema must be
    rejected, otherwise rows silently shift.
  - Column order is declared by the schema, not by whatever container holds values.

ARCHITECTURE INTEGRATION:
  - Called by: internal/trainer (Build, Check), internal/output (Row, LegacyRow)
  - Uses: internal/model

ERROR HANDLING:
  - Check/Row return ErrSchemaDrift wrapped with the offending names.

IMPLEMENTATION RULES:
  - Schema is immutable once built; accessors return copies.

USAGE:
  s := schema.Build(curriculum.Current())
  row, err := s.Row(0, rec)

SELF-HEALING INSTRUCTIONS:
  - If a column group is added, update Build, Row and LegacyRow together.

RELATED FILES:
  - internal/output/csv.go

MAINTENANCE:
  - Keep column suffixes stable; downstream analysis depends on them.
*/

package schema

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/daryltucker/forest-trainer/internal/model"
)

// Column suffixes of the derived column groups.
const (
	SuffixActivity   = "_activity"
	SuffixObjective  = "_objective"
	SuffixResult     = "_result"
	SuffixEvaluation = "_evaluation"
)

// BaseColumns precede every derived column.
var BaseColumns = []string{"id", "time_start", "time_stop", "time_diff"}

// ErrSchemaDrift is returned when a program does not match the session schema.
var ErrSchemaDrift = errors.New("program does not match log schema")

// Schema is the ordered column layout of one training session's log.
type Schema struct {
	activities []string
	objectives []string
	columns    []string
}

// Build derives the schema from a program.
func Build(p model.Program) Schema {
	s := Schema{
		activities: p.Activities.Names(),
		objectives: model.ObjectiveNames(p.Objectives),
	}

	cols := make([]string, 0, len(BaseColumns)+len(s.activities)+3*len(s.objectives))
	cols = append(cols, BaseColumns...)
	for _, name := range s.activities {
		cols = append(cols, name+SuffixActivity)
	}
	for _, suffix := range []string{SuffixObjective, SuffixResult, SuffixEvaluation} {
		for _, name := range s.objectives {
			cols = append(cols, name+suffix)
		}
	}
	s.columns = cols
	return s
}

// Columns returns the header row.
func (s Schema) Columns() []string {
	return slices.Clone(s.columns)
}

// Activities returns the activity names the schema was built from.
func (s Schema) Activities() []string {
	return slices.Clone(s.activities)
}

// Objectives returns the objective identifiers the schema was built from.
func (s Schema) Objectives() []string {
	return slices.Clone(s.objectives)
}

// Check reports ErrSchemaDrift when p declares different activities or objectives.
func (s Schema) Check(p model.Program) error {
	if got := p.Activities.Names(); !slices.Equal(got, s.activities) {
		return fmt.Errorf("%w: activities %v, schema has %v", ErrSchemaDrift, got, s.activities)
	}
	if got := model.ObjectiveNames(p.Objectives); !slices.Equal(got, s.objectives) {
		return fmt.Errorf("%w: objectives %v, schema has %v", ErrSchemaDrift, got, s.objectives)
	}
	return nil
}

// Row encodes rec as a data row with the given id. Unmeasured results and
// missing outcomes become empty cells, so the row always has len(Columns()) cells.
func (s Schema) Row(id int, rec model.Record) ([]string, error) {
	if err := s.Check(model.Program{Activities: rec.Activities, Objectives: rec.Objectives}); err != nil {
		return nil, err
	}

	row := make([]string, 0, len(s.columns))
	row = append(row, timing(id, rec)...)
	for _, name := range s.activities {
		v, _ := rec.Activities.Lookup(name)
		row = append(row, FormatFloat(v))
	}
	for _, o := range rec.Objectives {
		row = append(row, FormatFloat(o.Target))
	}
	for _, name := range s.objectives {
		if v, ok := rec.Results[name]; ok {
			row = append(row, FormatFloat(v))
		} else {
			row = append(row, "")
		}
	}
	for _, name := range s.objectives {
		v, _ := rec.Evaluation.Lookup(name)
		row = append(row, v)
	}
	return row, nil
}

// LegacyRow encodes rec the way historical logs were written: unmeasured
// results contribute no cell and outcomes follow the evaluation's own order.
// Rows with missing results are therefore shorter than the header.
func (s Schema) LegacyRow(id int, rec model.Record) ([]string, error) {
	if err := s.Check(model.Program{Activities: rec.Activities, Objectives: rec.Objectives}); err != nil {
		return nil, err
	}

	row := timing(id, rec)
	for _, a := range rec.Activities {
		row = append(row, FormatFloat(a.Value))
	}
	for _, o := range rec.Objectives {
		row = append(row, FormatFloat(o.Target))
	}
	for _, o := range rec.Objectives {
		if v, ok := rec.Results[o.Name]; ok {
			row = append(row, FormatFloat(v))
		}
	}
	for _, o := range rec.Evaluation {
		row = append(row, o.Value)
	}
	return row, nil
}

func timing(id int, rec model.Record) []string {
	return []string{
		strconv.Itoa(id),
		FormatTime(rec.TimeStart),
		FormatTime(rec.TimeStop),
		FormatElapsed(rec.TimeStart, rec.TimeStop),
	}
}

// FormatTime renders t as Unix seconds with microsecond precision.
func FormatTime(t time.Time) string {
	return formatMicros(t.UnixMicro())
}

// FormatElapsed renders stop - start in seconds, computed from the same
// whole microseconds FormatTime prints, so the three timing cells of a row
// always agree exactly.
func FormatElapsed(start, stop time.Time) string {
	return formatMicros(stop.UnixMicro() - start.UnixMicro())
}

func formatMicros(usec int64) string {
	sign := ""
	if usec < 0 {
		sign = "-"
		usec = -usec
	}
	return fmt.Sprintf("%s%d.%06d", sign, usec/1e6, usec%1e6)
}

// FormatFloat renders v in its shortest exact form.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
