/*
PURPOSE:
  High-level trainer that orchestrates one training session.
  Fixes the log schema, hands the loop to a session and records every
  completed iteration (evaluation, CSV row, journal line, chart).

REQUIREMENTS:
  User-specified:
  - Output directory must exist; nothing is created otherwise.
  - Log and chart are named after the session start time (YYYYMMDD-HHMMSS).
  - Each iteration is evaluated, logged and visualized before the next one starts.

  Implementation-discovered:
  - The schema is taken from the curriculum's first program; later programs
    with other names are rejected instead of producing shifted rows.
  - Collaborator failures abort the session; rows written so far stay on disk.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/curriculum, internal/session, internal/evaluator,
    internal/visualizer, internal/schema, internal/output, internal/monitor

ERROR HANDLING:
  - ErrInvalidOutputPath before any side effect.
  - Everything else propagates out of Train wrapped with context.

IMPLEMENTATION RULES:
  - One active session per Trainer. Iterations never overlap.
  - Options validate their arguments; a nil evaluator is rejected, not replaced.

USAGE:
  t, err := trainer.New(c, trainer.WithVisualizer(v))
  run, err := t.Train(ctx, "./out", step, "default")

SELF-HEALING INSTRUCTIONS:
  - If files are missing after a run, check the output directory permissions first.

RELATED FILES:
  - internal/trainer/handler.go
  - internal/session/session.go

MAINTENANCE:
  - Update Run when new per-session outputs are added.
*/

package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/daryltucker/forest-trainer/internal/curriculum"
	"github.com/daryltucker/forest-trainer/internal/evaluator"
	"github.com/daryltucker/forest-trainer/internal/model"
	"github.com/daryltucker/forest-trainer/internal/monitor"
	"github.com/daryltucker/forest-trainer/internal/output"
	"github.com/daryltucker/forest-trainer/internal/schema"
	"github.com/daryltucker/forest-trainer/internal/session"
	"github.com/daryltucker/forest-trainer/internal/visualizer"
)

// DefaultSessionName is used when Train is given an empty session name.
const DefaultSessionName = "default"

// StampLayout names the files of a session after its start time.
const StampLayout = "20060102-150405"

var (
	ErrInvalidOutputPath = errors.New("provided output path does not exist")
	ErrNilCurriculum     = errors.New("curriculum cannot be nil")
	ErrNilEvaluator      = errors.New("evaluator cannot be nil")
	ErrSessionActive     = errors.New("a training session is already active on this trainer")
)

// Option configures a Trainer.
type Option func(*Trainer) error

// WithEvaluator replaces the default threshold evaluator.
func WithEvaluator(e evaluator.Evaluator) Option {
	return func(t *Trainer) error {
		if e == nil {
			return ErrNilEvaluator
		}
		t.evaluator = e
		return nil
	}
}

// WithVisualizer renders a chart after every iteration.
func WithVisualizer(v visualizer.Visualizer) Option {
	return func(t *Trainer) error {
		t.visualizer = v
		return nil
	}
}

// WithSession replaces the default sequential session.
func WithSession(f session.Factory) Option {
	return func(t *Trainer) error {
		if f == nil {
			return errors.New("session factory cannot be nil")
		}
		t.newSession = f
		return nil
	}
}

// WithJournal also writes every record as a JSON line next to the CSV log.
func WithJournal() Option {
	return func(t *Trainer) error {
		t.journal = true
		return nil
	}
}

// WithSampler attaches a host resource sample to every journal entry.
func WithSampler(s monitor.Sampler) Option {
	return func(t *Trainer) error {
		t.sampler = s
		return nil
	}
}

// WithLegacyRows writes CSV rows in the historical layout.
func WithLegacyRows() Option {
	return func(t *Trainer) error {
		t.csvOpts = append(t.csvOpts, output.WithLegacyRows())
		return nil
	}
}

// WithClock overrides the clock used to name session files.
func WithClock(now func() time.Time) Option {
	return func(t *Trainer) error {
		t.now = now
		return nil
	}
}

// WithLogger sets the logger used for session and iteration progress.
// A nil logger keeps output.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trainer) error {
		if l != nil {
			t.logger = l
		}
		return nil
	}
}

// Trainer runs training sessions for a curriculum.
type Trainer struct {
	curriculum curriculum.Curriculum
	evaluator  evaluator.Evaluator
	visualizer visualizer.Visualizer
	newSession session.Factory
	sampler    monitor.Sampler
	journal    bool
	csvOpts    []output.CSVOption
	now        func() time.Time
	logger     *slog.Logger

	active atomic.Bool
}

// New creates a Trainer for c.
func New(c curriculum.Curriculum, opts ...Option) (*Trainer, error) {
	if c == nil {
		return nil, ErrNilCurriculum
	}

	t := &Trainer{
		curriculum: c,
		evaluator:  evaluator.NewThreshold(),
		now:        time.Now,
		logger:     output.Logger,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if t.newSession == nil {
		t.newSession = func(name string) session.Session {
			s := session.NewSequential(name)
			s.Logger = t.logger
			return s
		}
	}
	return t, nil
}

// Run describes one call to Train.
type Run struct {
	ID          string
	Name        string
	LogPath     string
	ImagePath   string
	JournalPath string
	Schema      schema.Schema

	records []model.Record
}

// Records returns the iterations completed so far, in completion order.
func (r *Run) Records() []model.Record {
	return slices.Clone(r.records)
}

// Train runs one session. train is handed to the session unchanged; every
// completed iteration is evaluated and recorded before the next one starts.
// When the session fails, the returned Run still describes the files written.
func (t *Trainer) Train(ctx context.Context, outputPath string, train model.TrainFunc, sessionName string) (*Run, error) {
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutputPath, outputPath)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidOutputPath, outputPath)
	}

	if !t.active.CompareAndSwap(false, true) {
		return nil, ErrSessionActive
	}
	defer t.active.Store(false)

	if sessionName == "" {
		sessionName = DefaultSessionName
	}

	stamp := t.now().Format(StampLayout)
	run := &Run{
		ID:        uuid.NewString(),
		Name:      sessionName,
		LogPath:   filepath.Join(outputPath, stamp+".csv"),
		ImagePath: filepath.Join(outputPath, stamp+".png"),
		Schema:    schema.Build(t.curriculum.Current()),
	}

	csvLog, err := output.CreateCSV(run.LogPath, run.Schema, t.csvOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init CSV log at %s: %w", run.LogPath, err)
	}
	defer csvLog.Close()

	var journal *output.JSONWriter
	if t.journal {
		run.JournalPath = filepath.Join(outputPath, stamp+".jsonl")
		journal, err = output.NewJSONWriter(run.JournalPath)
		if err != nil {
			return run, fmt.Errorf("failed to init journal at %s: %w", run.JournalPath, err)
		}
		defer journal.Close()
	}

	t.logger.Info("Training started",
		"session", run.Name,
		"id", run.ID,
		"log", run.LogPath,
		"columns", len(run.Schema.Columns()),
	)

	h := &handler{trainer: t, run: run, log: csvLog, journal: journal}
	if err := t.newSession(sessionName).Start(ctx, t.curriculum, train, h.handle); err != nil {
		t.logger.Error("Training aborted", "session", run.Name, "iterations", len(run.records), "error", err)
		return run, err
	}

	if err := csvLog.Close(); err != nil {
		return run, fmt.Errorf("failed to close CSV log: %w", err)
	}
	t.logger.Info("Training finished", "session", run.Name, "iterations", len(run.records))
	return run, nil
}
