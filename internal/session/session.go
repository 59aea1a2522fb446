/*
PURPOSE:
  Owns the training loop: asks the curriculum for a program, runs the
  training step, reports the completed iteration, advances.

REQUIREMENTS:
  User-specified:
  - One iteration completes (including its results callback) before the next starts.
  - The loop ends when the curriculum is exhausted.

  Implementation-discovered:
  - A cap on iterations is useful for smoke runs of long curricula.
  - Cancellation is only honored between iterations; a running step is never interrupted here.

ARCHITECTURE INTEGRATION:
  - Called by: internal/trainer
  - Uses: internal/curriculum, internal/model

ERROR HANDLING:
  - Any error from the training step or the results callback aborts the loop,
    wrapped with the session name and iteration number.

IMPLEMENTATION RULES:
  - No goroutines. Callbacks run on the caller's goroutine.

USAGE:
  s := session.NewSequential("default")
  err := s.Start(ctx, c, trainFn, resultsFn)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/trainer/trainer.go

MAINTENANCE:
  - Update if iterations ever need to run in parallel (the trainer would need locking).
*/

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/daryltucker/forest-trainer/internal/curriculum"
	"github.com/daryltucker/forest-trainer/internal/model"
	"github.com/daryltucker/forest-trainer/internal/output"
)

// Session drives the training loop for one curriculum.
type Session interface {
	Start(ctx context.Context, c curriculum.Curriculum, train model.TrainFunc, results model.ResultsFunc) error
}

// Factory builds a session for the given name.
type Factory func(name string) Session

// Sequential runs iterations one after the other until the curriculum is exhausted.
type Sequential struct {
	Name string
	// MaxIterations stops the loop early when positive.
	MaxIterations int
	Logger        *slog.Logger

	now func() time.Time
}

// NewSequential creates a sequential session with no iteration cap.
func NewSequential(name string) *Sequential {
	return &Sequential{Name: name, Logger: output.Logger, now: time.Now}
}

// Start runs the loop. It returns nil once the curriculum is exhausted or the
// iteration cap is reached, and ctx.Err() when cancelled between iterations.
func (s *Sequential) Start(ctx context.Context, c curriculum.Curriculum, train model.TrainFunc, results model.ResultsFunc) error {
	logger := s.Logger
	if logger == nil {
		logger = output.Logger
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	logger.Info("Session started", "session", s.Name)
	iteration := 0
	for {
		if err := ctx.Err(); err != nil {
			logger.Warn("Session cancelled", "session", s.Name, "iterations", iteration)
			return err
		}

		program := c.Current()
		start := now()
		res, err := train(ctx, program.Activities)
		stop := now()
		if err != nil {
			return fmt.Errorf("session %s: iteration %d: training step: %w", s.Name, iteration, err)
		}

		if err := results(ctx, res, program, start, stop); err != nil {
			return fmt.Errorf("session %s: iteration %d: %w", s.Name, iteration, err)
		}
		iteration++

		if s.MaxIterations > 0 && iteration >= s.MaxIterations {
			logger.Info("Session reached iteration cap", "session", s.Name, "iterations", iteration)
			return nil
		}
		if !c.Advance() {
			logger.Info("Session complete", "session", s.Name, "iterations", iteration)
			return nil
		}
	}
}
