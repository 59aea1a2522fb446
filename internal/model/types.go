/*
PURPOSE:
  Defines the core data structures used throughout Forest Trainer.
  These models represent curriculum programs and per-iteration training records.

REQUIREMENTS:
  User-specified:
  - Record start/stop time, activities, objectives, results and evaluation per iteration.
  - Activities and objectives keep the order the curriculum declared them in.

  Implementation-discovered:
  - Results may be a subset of the objectives (unmeasured objectives).
  - Need JSON tags for the journal and the export command.
  - A diverged step reports NaN or Inf. encoding/json rejects those, so
    floats are written as the strings "NaN", "+Inf" and "-Inf" instead.

ARCHITECTURE INTEGRATION:
  - Used by: internal/schema, internal/output, internal/trainer, internal/session,
    internal/evaluator, internal/curriculum, internal/visualizer, internal/engine
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Ordered slices, never maps, wherever order ends up in a file.
  - Use time.Time and time.Duration for high precision.

USAGE:
  rec := model.Record{TimeStart: start, TimeStop: stop, ...}

SELF-HEALING INSTRUCTIONS:
  - If new per-iteration fields are needed, add them to Record and update
    internal/schema and internal/output.

RELATED FILES:
  - internal/schema/schema.go
  - internal/output/csv.go
  - internal/output/json.go

MAINTENANCE:
  - Update when the log format gains new column groups.
*/

package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Activity is a named input value driving one iteration's training step.
type Activity struct {
	Name  string  `json:"name" yaml:"name" toml:"name"`
	Value float64 `json:"value" yaml:"value" toml:"value"`
}

// Activities is an ordered set of activities.
type Activities []Activity

// Names returns the activity names in declared order.
func (a Activities) Names() []string {
	names := make([]string, len(a))
	for i, act := range a {
		names[i] = act.Name
	}
	return names
}

// Lookup returns the value of the named activity.
func (a Activities) Lookup(name string) (float64, bool) {
	for _, act := range a {
		if act.Name == name {
			return act.Value, true
		}
	}
	return 0, false
}

// MarshalJSON writes non-finite values as strings.
func (a Activity) MarshalJSON() ([]byte, error) {
	type plain Activity
	return json.Marshal(struct {
		plain
		Value jsonFloat `json:"value"`
	}{plain(a), jsonFloat(a.Value)})
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	type plain Activity
	aux := struct {
		*plain
		Value jsonFloat `json:"value"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Value = float64(aux.Value)
	return nil
}

// Objective is a target value identified by a stable name.
type Objective struct {
	Name   string  `json:"name" yaml:"name" toml:"name"`
	Target float64 `json:"target" yaml:"target" toml:"target"`
	// Minimize flips the comparison: lower results are better.
	Minimize bool `json:"minimize,omitempty" yaml:"minimize,omitempty" toml:"minimize,omitempty"`
}

// MarshalJSON writes a non-finite target as a string.
func (o Objective) MarshalJSON() ([]byte, error) {
	type plain Objective
	return json.Marshal(struct {
		plain
		Target jsonFloat `json:"target"`
	}{plain(o), jsonFloat(o.Target)})
}

func (o *Objective) UnmarshalJSON(data []byte) error {
	type plain Objective
	aux := struct {
		*plain
		Target jsonFloat `json:"target"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	o.Target = float64(aux.Target)
	return nil
}

// ObjectiveNames returns the identifiers of objs in order.
func ObjectiveNames(objs []Objective) []string {
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.Name
	}
	return names
}

// Program is one curriculum-defined unit of work.
type Program struct {
	Activities Activities  `json:"activities" yaml:"activities" toml:"activities"`
	Objectives []Objective `json:"objectives" yaml:"objectives" toml:"objectives"`
}

// Results maps objective identifiers to the value achieved in one iteration.
// Objectives that went unmeasured are simply absent.
type Results map[string]float64

// MarshalJSON writes non-finite results (a diverged loss) as strings.
func (r Results) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	m := make(map[string]jsonFloat, len(r))
	for k, v := range r {
		m[k] = jsonFloat(v)
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts numbers and the strings "NaN", "+Inf" and "-Inf".
func (r *Results) UnmarshalJSON(data []byte) error {
	var m map[string]jsonFloat
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		*r = nil
		return nil
	}
	*r = make(Results, len(m))
	for k, v := range m {
		(*r)[k] = float64(v)
	}
	return nil
}

// Outcome is the evaluation of a single objective.
type Outcome struct {
	Objective string `json:"objective"`
	Value     string `json:"value"`
}

// Evaluation is the ordered list of outcomes produced by an evaluator.
type Evaluation []Outcome

// Lookup returns the outcome recorded for the named objective.
func (e Evaluation) Lookup(objective string) (string, bool) {
	for _, o := range e {
		if o.Objective == objective {
			return o.Value, true
		}
	}
	return "", false
}

// Record captures one completed iteration. It is never mutated after creation.
type Record struct {
	TimeStart  time.Time   `json:"time_start"`
	TimeStop   time.Time   `json:"time_stop"`
	Activities Activities  `json:"activities"`
	Objectives []Objective `json:"objectives"`
	Results    Results     `json:"results"`
	Evaluation Evaluation  `json:"evaluation"`
}

// Duration is TimeStop - TimeStart.
func (r Record) Duration() time.Duration {
	return r.TimeStop.Sub(r.TimeStart)
}

// TrainFunc runs one training step for the given activities and reports the
// achieved value per objective.
type TrainFunc func(ctx context.Context, activities Activities) (Results, error)

// ResultsFunc is called once per completed iteration, strictly sequentially.
type ResultsFunc func(ctx context.Context, results Results, program Program, start, stop time.Time) error

// jsonFloat is a float64 whose NaN and infinities survive a JSON round trip.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || !(math.IsNaN(v) || math.IsInf(v, 0)) {
			return fmt.Errorf("invalid number %q", s)
		}
		*f = jsonFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}
