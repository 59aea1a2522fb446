/*
PURPOSE:
  Handles one completed iteration: checks it, evaluates it, persists it.

REQUIREMENTS:
  User-specified:
  - Every iteration becomes exactly one CSV row, written before the next starts.
  - Results are evaluated against the program's objectives.

  Implementation-discovered:
  - A program with different names than the first one cannot fit the header
    and aborts the session.
  - Records are stored only after their row is on disk.

ARCHITECTURE INTEGRATION:
  - Called by: internal/session (as the ResultsFunc)
  - Uses: internal/evaluator, internal/output, internal/visualizer, internal/monitor

ERROR HANDLING:
  - Any error aborts the session, except a failed host sample (warning only).

IMPLEMENTATION RULES:
  - Order: check -> evaluate -> CSV -> journal -> chart -> log.

USAGE:
  Created by Trainer.Train; not used directly.

SELF-HEALING INSTRUCTIONS:
  - If rows and journal disagree, check that both are fed the same Record.

RELATED FILES:
  - internal/trainer/trainer.go
  - internal/output/csv.go

MAINTENANCE:
  - Update when new per-iteration outputs are added.
*/

package trainer

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/daryltucker/forest-trainer/internal/model"
	"github.com/daryltucker/forest-trainer/internal/monitor"
	"github.com/daryltucker/forest-trainer/internal/output"
)

// handler records the iterations of one run.
type handler struct {
	trainer *Trainer
	run     *Run
	log     *output.CSVLog
	journal *output.JSONWriter
}

func (h *handler) handle(ctx context.Context, results model.Results, program model.Program, start, stop time.Time) error {
	t := h.trainer

	if err := h.run.Schema.Check(program); err != nil {
		return err
	}

	evaluation, err := t.evaluator.Compare(results, program.Objectives)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	rec := model.Record{
		TimeStart:  start,
		TimeStop:   stop,
		Activities: slices.Clone(program.Activities),
		Objectives: slices.Clone(program.Objectives),
		Results:    maps.Clone(results),
		Evaluation: slices.Clone(evaluation),
	}
	iteration := len(h.run.records)

	if err := h.log.Append(rec); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	h.run.records = append(h.run.records, rec)

	if h.journal != nil {
		entry := output.Entry{
			SessionID: h.run.ID,
			Session:   h.run.Name,
			Iteration: iteration,
			Record:    rec,
			Host:      h.sample(),
		}
		if err := h.journal.Write(entry); err != nil {
			return fmt.Errorf("failed to write journal: %w", err)
		}
	}

	if v := t.visualizer; v != nil {
		v.AddResults(rec.Activities, rec.Objectives, rec.Results, rec.Evaluation)
		chart, err := v.Visualize()
		if err != nil {
			return fmt.Errorf("visualization failed: %w", err)
		}
		if err := chart.SaveTo(h.run.ImagePath); err != nil {
			return fmt.Errorf("failed to save chart to %s: %w", h.run.ImagePath, err)
		}
		chart.Clear()
	}

	t.logger.Info("Iteration complete",
		"session", h.run.Name,
		"iteration", iteration,
		"duration", rec.Duration(),
		"evaluation", summarize(rec.Evaluation),
	)
	return nil
}

// sample never fails the iteration; host load is informational.
func (h *handler) sample() *monitor.Sample {
	s := h.trainer.sampler
	if s == nil {
		return nil
	}
	sample, err := s.Sample()
	if err != nil {
		h.trainer.logger.Warn("Host sample failed", "error", err)
		return nil
	}
	return sample
}

func summarize(e model.Evaluation) map[string]string {
	out := make(map[string]string, len(e))
	for _, o := range e {
		out[o.Objective] = o.Value
	}
	return out
}
