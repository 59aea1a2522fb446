package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/forest-trainer/internal/config"
	"github.com/daryltucker/forest-trainer/internal/model"
	"github.com/daryltucker/forest-trainer/internal/output"
	"github.com/daryltucker/forest-trainer/internal/trainer"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func shellStep(script string) *CommandStep {
	s := NewCommandStep([]string{"sh", "-c", script})
	s.Stderr = io.Discard
	s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return s
}

var lr = model.Activities{{Name: "lr", Value: 0.1}, {Name: "batch-size", Value: 32}}

func TestCommandStepParsesLastJSONLine(t *testing.T) {
	requireShell(t)
	s := shellStep(`echo "epoch 1"; echo '{"accuracy": 0.5}'; echo "garbage {"; echo '{"accuracy": 0.7, "loss": 0.3}'`)

	results, err := s.Train(context.Background(), lr)
	require.NoError(t, err)
	assert.Equal(t, model.Results{"accuracy": 0.7, "loss": 0.3}, results)
}

func TestCommandStepAcceptsNonFiniteResults(t *testing.T) {
	requireShell(t)
	s := shellStep(`echo '{"accuracy": 0.5, "loss": "NaN"}'`)

	results, err := s.Train(context.Background(), lr)
	require.NoError(t, err)
	assert.Equal(t, 0.5, results["accuracy"])
	assert.True(t, math.IsNaN(results["loss"]))
}

func TestCommandStepPassesActivities(t *testing.T) {
	requireShell(t)
	s := shellStep(`cat > "$OUT_FILE"; printf '{"lr": %s, "batch": %s}\n' "$FOREST_ACTIVITY_LR" "$FOREST_ACTIVITY_BATCH_SIZE"`)
	stdin := filepath.Join(t.TempDir(), "stdin.json")
	t.Setenv("OUT_FILE", stdin)

	results, err := s.Train(context.Background(), lr)
	require.NoError(t, err)
	assert.Equal(t, model.Results{"lr": 0.1, "batch": 32}, results)

	data, err := os.ReadFile(stdin)
	require.NoError(t, err)
	assert.JSONEq(t, `{"activities":[{"name":"lr","value":0.1},{"name":"batch-size","value":32}]}`, string(data))
}

func TestCommandStepNoResults(t *testing.T) {
	requireShell(t)
	s := shellStep(`echo "nothing useful"`)

	_, err := s.Train(context.Background(), lr)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestCommandStepRetries(t *testing.T) {
	requireShell(t)
	counter := filepath.Join(t.TempDir(), "count")
	t.Setenv("COUNTER", counter)
	s := shellStep(`echo x >> "$COUNTER"; if [ "$(wc -l < "$COUNTER")" -lt 3 ]; then exit 1; fi; echo '{"accuracy": 1}'`)
	s.MaxRetries = 3
	s.RetryDelay = time.Millisecond

	results, err := s.Train(context.Background(), lr)
	require.NoError(t, err)
	assert.Equal(t, model.Results{"accuracy": 1}, results)

	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "x"))
}

func TestCommandStepGivesUp(t *testing.T) {
	requireShell(t)
	s := shellStep(`exit 3`)
	s.MaxRetries = 2
	s.RetryDelay = time.Millisecond

	_, err := s.Train(context.Background(), lr)
	require.Error(t, err)
	var exitErr *exec.ExitError
	assert.True(t, errors.As(err, &exitErr))
}

func TestCommandStepTimeout(t *testing.T) {
	requireShell(t)
	s := shellStep(`exec sleep 5`)
	s.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := s.Train(context.Background(), lr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCommandStepCancelled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := shellStep(`echo '{"accuracy": 1}'`)
	s.MaxRetries = 5

	_, err := s.Train(ctx, lr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommandStepEmptyCommand(t *testing.T) {
	_, err := NewCommandStep(nil).Train(context.Background(), lr)
	assert.Error(t, err)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "LR", EnvName("lr"))
	assert.Equal(t, "BATCH_SIZE", EnvName("batch-size"))
	assert.Equal(t, "L2_REG", EnvName("l2.reg"))
	assert.Equal(t, "_", EnvName("é"))
}

const curriculumYAML = `
programs:
  - repeat: 3
    activities:
      - name: lr
        value: 0.1
    objectives:
      - name: accuracy
        target: 0.9
`

func TestRun(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0755))
	curr := filepath.Join(dir, "curriculum.yaml")
	require.NoError(t, os.WriteFile(curr, []byte(curriculumYAML), 0644))

	output.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cfg := config.DefaultConfig()
	cfg.OutputDir = out
	cfg.Curriculum = curr
	cfg.Command = []string{"sh", "-c", `echo '{"accuracy": 0.95}'`}
	cfg.MaxIterations = 2
	cfg.Journal = true
	cfg.Visualize = true

	run, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, run.Records(), 2)
	assert.FileExists(t, run.LogPath)
	assert.FileExists(t, run.ImagePath)
	assert.FileExists(t, run.JournalPath)
}

func TestRunMissingOutputDir(t *testing.T) {
	dir := t.TempDir()
	curr := filepath.Join(dir, "curriculum.yaml")
	require.NoError(t, os.WriteFile(curr, []byte(curriculumYAML), 0644))

	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(dir, "missing")
	cfg.Curriculum = curr
	cfg.Command = []string{"true"}

	_, err := Run(context.Background(), cfg)
	assert.ErrorIs(t, err, trainer.ErrInvalidOutputPath)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestRunRequiresCommand(t *testing.T) {
	_, err := Run(context.Background(), config.DefaultConfig())
	assert.ErrorContains(t, err, "no training command")
}

func TestOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Len(t, Options(cfg), 2)

	cfg.Visualize = true
	cfg.Journal = true
	cfg.HostStats = true
	cfg.LegacyRows = true
	assert.Len(t, Options(cfg), 6)
}
