/*
PURPOSE:
  Runs one training step as an external program.
  Turns any script (python, shell, a compiled trainer) into a model.TrainFunc.

REQUIREMENTS:
  User-specified:
  - Activities go in, results per objective come out.
  - Optional timeout per step and retries.

  Implementation-discovered:
  - Activities are sent both as JSON on stdin and as FOREST_ACTIVITY_<NAME>
    env vars, so shell scripts do not need a JSON parser.
  - Training scripts print progress to stdout; only the last JSON object line
    counts as the result (garbage resilience).

ARCHITECTURE INTEGRATION:
  - Called by: internal/session (through the trainer)
  - Uses: internal/model, internal/output

ERROR HANDLING:
  - Non-zero exit, timeout and missing results are retried up to MaxRetries attempts.
  - Context cancellation is never retried.

IMPLEMENTATION RULES:
  - Use os/exec with CommandContext.
  - Stderr of the child is passed through.

USAGE:
  step := engine.NewCommandStep([]string{"python", "train.py"})
  results, err := step.Train(ctx, activities)

SELF-HEALING INSTRUCTIONS:
  - If results are always missing, run the command by hand and check its last stdout line.

RELATED FILES:
  - internal/engine/runner.go

MAINTENANCE:
  - Keep the stdin payload backwards compatible; scripts depend on it.
*/

package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/daryltucker/forest-trainer/internal/model"
	"github.com/daryltucker/forest-trainer/internal/output"
)

// ActivityEnvPrefix prefixes the environment variable of each activity.
const ActivityEnvPrefix = "FOREST_ACTIVITY_"

const waitDelay = time.Second

// ErrNoResults is returned when the command printed no JSON result line.
var ErrNoResults = errors.New("training command printed no results")

// CommandStep runs an external command for every training step.
type CommandStep struct {
	Command []string
	Dir     string
	// Timeout bounds a single attempt; 0 means no timeout.
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Stderr     io.Writer
	Logger     *slog.Logger
}

// NewCommandStep creates a step running argv with a single attempt and no timeout.
func NewCommandStep(argv []string) *CommandStep {
	return &CommandStep{
		Command:    argv,
		MaxRetries: 1,
		Stderr:     os.Stderr,
		Logger:     output.Logger,
	}
}

type stepInput struct {
	Activities model.Activities `json:"activities"`
}

// Train satisfies model.TrainFunc.
func (s *CommandStep) Train(ctx context.Context, activities model.Activities) (model.Results, error) {
	if len(s.Command) == 0 {
		return nil, errors.New("training command is empty")
	}

	payload, err := json.Marshal(stepInput{Activities: activities})
	if err != nil {
		return nil, fmt.Errorf("failed to encode activities: %w", err)
	}
	env := append(os.Environ(), activityEnv(activities)...)

	var lastErr error
	for i := 0; i < max(s.MaxRetries, 1); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.RetryDelay):
			}
			s.logger().Info("Retrying training step...", "attempt", i+1, "error", lastErr)
		}

		results, err := s.attempt(ctx, payload, env)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, lastErr
}

func (s *CommandStep) attempt(ctx context.Context, payload []byte, env []string) (model.Results, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Dir = s.Dir
	cmd.Env = env
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}
	// grandchildren may hold stdout open after the command is killed
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("training command timed out after %s: %w", s.Timeout, err)
		}
		return nil, fmt.Errorf("training command failed: %w", err)
	}

	return s.parseResults(&stdout)
}

// parseResults returns the last stdout line that is a JSON object of numbers.
func (s *CommandStep) parseResults(r io.Reader) (model.Results, error) {
	var results model.Results
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var candidate model.Results
		if err := json.Unmarshal(line, &candidate); err != nil {
			s.logger().Debug("Skipping non-result output", "line", string(line))
			continue
		}
		results = candidate
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read training output: %w", err)
	}
	if results == nil {
		return nil, ErrNoResults
	}
	return results, nil
}

func (s *CommandStep) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return output.Logger
}

func activityEnv(activities model.Activities) []string {
	env := make([]string, 0, len(activities))
	for _, a := range activities {
		env = append(env, ActivityEnvPrefix+EnvName(a.Name)+"="+strconv.FormatFloat(a.Value, 'f', -1, 64))
	}
	return env
}

// EnvName upper-cases name and replaces anything that is not a letter or digit with '_'.
func EnvName(name string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, name)
}
