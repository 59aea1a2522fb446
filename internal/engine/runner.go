/*
PURPOSE:
  High-level runner that turns a loaded configuration into a training session.
  Builds curriculum, training step, trainer options, then trains.

REQUIREMENTS:
  User-specified:
  - Train the command against every program of the curriculum.
  - Log results to CSV (and optionally JSON Lines + a chart).

  Implementation-discovered:
  - Needs to report progress to CLI.
  - The output directory is NOT created here: a missing directory is a user
    error and must fail before anything is written.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/config, internal/curriculum, internal/trainer,
    internal/session, internal/visualizer, internal/monitor

ERROR HANDLING:
  - Fail fast: any iteration failure aborts the run and is returned.

IMPLEMENTATION RULES:
  - Load curriculum -> build step -> build trainer -> Train.

USAGE:
  run, err := engine.Run(ctx, cfg)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/step.go
  - internal/trainer/trainer.go

MAINTENANCE:
  - Update when config gains options that map to trainer options.
*/

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/daryltucker/forest-trainer/internal/config"
	"github.com/daryltucker/forest-trainer/internal/curriculum"
	"github.com/daryltucker/forest-trainer/internal/monitor"
	"github.com/daryltucker/forest-trainer/internal/output"
	"github.com/daryltucker/forest-trainer/internal/session"
	"github.com/daryltucker/forest-trainer/internal/trainer"
	"github.com/daryltucker/forest-trainer/internal/visualizer"
)

// Run executes one training session as described by cfg.
func Run(ctx context.Context, cfg *config.Config) (*trainer.Run, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("no training command configured")
	}

	c, err := curriculum.Load(cfg.Curriculum)
	if err != nil {
		return nil, err
	}
	output.Logger.Info("Loaded curriculum", "path", cfg.Curriculum, "iterations", c.Iterations())

	step := NewCommandStep(cfg.Command)
	step.Timeout = cfg.StepTimeout
	step.MaxRetries = cfg.MaxRetries
	step.RetryDelay = cfg.RetryDelay

	t, err := trainer.New(c, Options(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to init trainer: %w", err)
	}

	return t.Train(ctx, cfg.OutputDir, step.Train, cfg.SessionName)
}

// Options maps cfg onto trainer options.
func Options(cfg *config.Config) []trainer.Option {
	opts := []trainer.Option{
		trainer.WithLogger(output.Logger),
		trainer.WithSession(func(name string) session.Session {
			s := session.NewSequential(name)
			s.MaxIterations = cfg.MaxIterations
			return s
		}),
	}
	if cfg.Visualize {
		opts = append(opts, trainer.WithVisualizer(visualizer.NewPlot(cfg.Plot.Title, cfg.Plot.Width, cfg.Plot.Height)))
	}
	if cfg.Journal {
		opts = append(opts, trainer.WithJournal())
	}
	if cfg.HostStats {
		opts = append(opts, trainer.WithSampler(monitor.NewHostSampler()))
	}
	if cfg.LegacyRows {
		opts = append(opts, trainer.WithLegacyRows())
	}
	return opts
}
