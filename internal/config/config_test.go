package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "default", cfg.SessionName)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, time.Duration(0), cfg.StepTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("TRAIN_SCRIPT", "train.py")
	content := `
output_dir: ./runs
curriculum: lessons.toml
command: ["python", "${TRAIN_SCRIPT}"]
step_timeout: 90s
max_retries: 3
visualize: true
log:
  level: debug
plot:
  width: 10
`
	path := filepath.Join(t.TempDir(), "trainer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./runs", cfg.OutputDir)
	assert.Equal(t, "lessons.toml", cfg.Curriculum)
	assert.Equal(t, []string{"python", "train.py"}, cfg.Command)
	assert.Equal(t, 90*time.Second, cfg.StepTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.True(t, cfg.Visualize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10.0, cfg.Plot.Width)

	// unspecified values keep their defaults
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5.0, cfg.Plot.Height)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
}

func TestLoadKeepsUnknownEnvReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session_name: ${FOREST_TEST_UNSET_VAR}\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${FOREST_TEST_UNSET_VAR}", cfg.SessionName)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/trainer.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: [oops"), 0644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadSearchesDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	prevDir, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prevDir) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "forest_trainer.yaml"), []byte("session_name: found\n"), 0644))
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "found", cfg.SessionName)
}

func TestOverlayFromEnv(t *testing.T) {
	t.Setenv("FOREST_OUTPUT_DIR", "/tmp/runs")
	t.Setenv("FOREST_MAX_ITERATIONS", "7")
	t.Setenv("FOREST_LOG_LEVEL", "warn")
	t.Setenv("FOREST_STEP_TIMEOUT", "1m")
	t.Setenv("FOREST_JOURNAL", "true")

	cfg := DefaultConfig()
	cfg.Overlay(NewViper())

	assert.Equal(t, "/tmp/runs", cfg.OutputDir)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, time.Minute, cfg.StepTimeout)
	assert.True(t, cfg.Journal)
	// untouched keys keep file/default values
	assert.Equal(t, "default", cfg.SessionName)
	assert.Equal(t, 1, cfg.MaxRetries)
}

func TestOverlayExplicitValues(t *testing.T) {
	v := NewViper()
	v.Set(KeyCommand, []string{"./train.sh", "--fast"})
	v.Set(KeyLegacyRows, true)

	cfg := DefaultConfig()
	cfg.Overlay(v)
	assert.Equal(t, []string{"./train.sh", "--fast"}, cfg.Command)
	assert.True(t, cfg.LegacyRows)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		msg    string
	}{
		{name: "empty output dir", mutate: func(c *Config) { c.OutputDir = "" }, msg: "output_dir cannot be empty"},
		{name: "empty curriculum", mutate: func(c *Config) { c.Curriculum = "" }, msg: "curriculum cannot be empty"},
		{name: "negative timeout", mutate: func(c *Config) { c.StepTimeout = -time.Second }, msg: "step_timeout"},
		{name: "no attempts", mutate: func(c *Config) { c.MaxRetries = 0 }, msg: "max_retries must be at least 1"},
		{name: "negative cap", mutate: func(c *Config) { c.MaxIterations = -1 }, msg: "max_iterations"},
		{name: "host stats without journal", mutate: func(c *Config) { c.HostStats = true }, msg: "host_stats requires journal"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "trace" }, msg: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, msg: "invalid log format"},
		{name: "bad plot", mutate: func(c *Config) { c.Visualize = true; c.Plot.Width = 0 }, msg: "plot: width and height must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = ""
	cfg.MaxRetries = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output_dir")
	assert.Contains(t, err.Error(), "max_retries")
}
