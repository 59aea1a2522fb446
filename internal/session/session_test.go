package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/forest-trainer/internal/curriculum"
	"github.com/daryltucker/forest-trainer/internal/model"
)

func newCurriculum(t *testing.T, repeat int) *curriculum.Static {
	t.Helper()
	c, err := curriculum.NewStatic([]curriculum.Step{{
		Repeat:     repeat,
		Activities: model.Activities{{Name: "lr", Value: 0.1}},
		Objectives: []model.Objective{{Name: "accuracy", Target: 0.9}},
	}})
	require.NoError(t, err)
	return c
}

func newTestSession(name string) *Sequential {
	s := NewSequential(name)
	s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	tick := time.Unix(1700000000, 0)
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return s
}

func TestSequentialRunsEveryIteration(t *testing.T) {
	s := newTestSession("default")
	var trained, reported int
	var lastStart, lastStop time.Time

	err := s.Start(context.Background(), newCurriculum(t, 4),
		func(_ context.Context, a model.Activities) (model.Results, error) {
			// the previous iteration has been reported before the next step runs
			assert.Equal(t, trained, reported)
			trained++
			assert.Equal(t, model.Activities{{Name: "lr", Value: 0.1}}, a)
			return model.Results{"accuracy": 0.5}, nil
		},
		func(_ context.Context, r model.Results, p model.Program, start, stop time.Time) error {
			reported++
			assert.Equal(t, model.Results{"accuracy": 0.5}, r)
			assert.Len(t, p.Objectives, 1)
			assert.True(t, stop.After(start))
			assert.True(t, start.After(lastStop) || lastStop.IsZero())
			lastStart, lastStop = start, stop
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 4, trained)
	assert.Equal(t, 4, reported)
	assert.Equal(t, time.Second, lastStop.Sub(lastStart))
}

func TestSequentialMaxIterations(t *testing.T) {
	s := newTestSession("capped")
	s.MaxIterations = 2
	count := 0

	err := s.Start(context.Background(), newCurriculum(t, 10),
		func(context.Context, model.Activities) (model.Results, error) { return nil, nil },
		func(context.Context, model.Results, model.Program, time.Time, time.Time) error {
			count++
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSequentialTrainingError(t *testing.T) {
	s := newTestSession("failing")
	boom := errors.New("boom")
	calls := 0

	err := s.Start(context.Background(), newCurriculum(t, 3),
		func(context.Context, model.Activities) (model.Results, error) {
			calls++
			if calls == 2 {
				return nil, boom
			}
			return model.Results{}, nil
		},
		func(context.Context, model.Results, model.Program, time.Time, time.Time) error { return nil })

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "session failing: iteration 1")
}

func TestSequentialResultsError(t *testing.T) {
	s := newTestSession("default")
	boom := errors.New("disk full")
	trained := 0

	err := s.Start(context.Background(), newCurriculum(t, 3),
		func(context.Context, model.Activities) (model.Results, error) {
			trained++
			return model.Results{}, nil
		},
		func(context.Context, model.Results, model.Program, time.Time, time.Time) error { return boom })

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, trained)
}

func TestSequentialCancelledBetweenIterations(t *testing.T) {
	s := newTestSession("default")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trained := 0

	err := s.Start(ctx, newCurriculum(t, 5),
		func(context.Context, model.Activities) (model.Results, error) {
			trained++
			return model.Results{}, nil
		},
		func(context.Context, model.Results, model.Program, time.Time, time.Time) error {
			cancel()
			return nil
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, trained)
}
