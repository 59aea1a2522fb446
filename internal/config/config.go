/*
PURPOSE:
  Defines the configuration structure and loading logic for Forest Trainer.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Allow configuration of output directory, curriculum, training command and timeouts.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variables overrides (FOREST_...) and flag overrides.
  - ${VAR} references inside the file are expanded before parsing.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3, github.com/spf13/viper

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default files fall back to defaults; a missing explicit file is an error.
  - Validate aggregates every problem with errors.Join.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults should be sensible (no step timeout, 1 attempt, text logs).

USAGE:
  cfg, err := config.Load("trainer.yaml")
  cfg.Overlay(v)
  err = cfg.Validate()

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config, DefaultConfig(), Overlay() and Validate().

RELATED FILES:
  - internal/cli/run.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Keys shared by Overlay, environment variables (FOREST_<KEY>) and flags.
const (
	KeyOutputDir     = "output_dir"
	KeySessionName   = "session_name"
	KeyCurriculum    = "curriculum"
	KeyCommand       = "command"
	KeyStepTimeout   = "step_timeout"
	KeyMaxRetries    = "max_retries"
	KeyRetryDelay    = "retry_delay"
	KeyMaxIterations = "max_iterations"
	KeyVisualize     = "visualize"
	KeyJournal       = "journal"
	KeyHostStats     = "host_stats"
	KeyLegacyRows    = "legacy_rows"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FOREST"

// Config represents the full configuration for Forest Trainer.
type Config struct {
	OutputDir   string `yaml:"output_dir"`
	SessionName string `yaml:"session_name"`
	// Curriculum is the path to a YAML or TOML curriculum file.
	Curriculum string `yaml:"curriculum"`
	// Command is the training step: argv of a program reading activities on
	// stdin and printing results as JSON.
	Command []string `yaml:"command"`
	// StepTimeout bounds one training step; 0 means no timeout.
	StepTimeout   time.Duration `yaml:"step_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxIterations int           `yaml:"max_iterations"`
	Visualize     bool          `yaml:"visualize"`
	Journal       bool          `yaml:"journal"`
	HostStats     bool          `yaml:"host_stats"`
	LegacyRows    bool          `yaml:"legacy_rows"`
	Log           LogConfig     `yaml:"log"`
	Plot          PlotConfig    `yaml:"plot"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PlotConfig sizes the chart, in inches.
type PlotConfig struct {
	Title  string  `yaml:"title"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:   ".",
		SessionName: "default",
		Curriculum:  "curriculum.yaml",
		MaxRetries:  1,
		RetryDelay:  2 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Plot: PlotConfig{
			Title:  "Training progress",
			Width:  8,
			Height: 5,
		},
	}
}

// DefaultFiles are searched in order when no config path is given.
var DefaultFiles = []string{"trainer.yaml", "trainer.yml", "forest_trainer.yaml"}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		found := false
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				found = true
				break
			}
		}
		if !found {
			return cfg, nil
		}
	}

	data = substituteEnvVars(data)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(content []byte) []byte {
	return envVarRegex.ReplaceAllFunc(content, func(match []byte) []byte {
		varName := string(envVarRegex.FindSubmatch(match)[1])
		if value, exists := os.LookupEnv(varName); exists {
			return []byte(value)
		}
		return match
	})
}

var envKeyReplacer = strings.NewReplacer(".", "_")

// NewViper returns a viper instance reading FOREST_* environment variables
// ("log.level" is FOREST_LOG_LEVEL).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	return v
}

// Overlay copies every key set in v (environment or changed flag) over c.
func (c *Config) Overlay(v *viper.Viper) {
	if v.IsSet(KeyOutputDir) {
		c.OutputDir = v.GetString(KeyOutputDir)
	}
	if v.IsSet(KeySessionName) {
		c.SessionName = v.GetString(KeySessionName)
	}
	if v.IsSet(KeyCurriculum) {
		c.Curriculum = v.GetString(KeyCurriculum)
	}
	if v.IsSet(KeyCommand) {
		c.Command = v.GetStringSlice(KeyCommand)
	}
	if v.IsSet(KeyStepTimeout) {
		c.StepTimeout = v.GetDuration(KeyStepTimeout)
	}
	if v.IsSet(KeyMaxRetries) {
		c.MaxRetries = v.GetInt(KeyMaxRetries)
	}
	if v.IsSet(KeyRetryDelay) {
		c.RetryDelay = v.GetDuration(KeyRetryDelay)
	}
	if v.IsSet(KeyMaxIterations) {
		c.MaxIterations = v.GetInt(KeyMaxIterations)
	}
	if v.IsSet(KeyVisualize) {
		c.Visualize = v.GetBool(KeyVisualize)
	}
	if v.IsSet(KeyJournal) {
		c.Journal = v.GetBool(KeyJournal)
	}
	if v.IsSet(KeyHostStats) {
		c.HostStats = v.GetBool(KeyHostStats)
	}
	if v.IsSet(KeyLegacyRows) {
		c.LegacyRows = v.GetBool(KeyLegacyRows)
	}
	if v.IsSet(KeyLogLevel) {
		c.Log.Level = v.GetString(KeyLogLevel)
	}
	if v.IsSet(KeyLogFormat) {
		c.Log.Format = v.GetString(KeyLogFormat)
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if c.OutputDir == "" {
		errs = append(errs, fmt.Errorf("output_dir cannot be empty"))
	}
	if c.Curriculum == "" {
		errs = append(errs, fmt.Errorf("curriculum cannot be empty"))
	}
	if c.StepTimeout < 0 {
		errs = append(errs, fmt.Errorf("step_timeout must be non-negative"))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must be non-negative"))
	}
	if c.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be non-negative"))
	}
	if c.HostStats && !c.Journal {
		errs = append(errs, fmt.Errorf("host_stats requires journal"))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if c.Visualize {
		if err := c.Plot.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("plot: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (l *LogConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[l.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", l.Format)
	}

	return nil
}

func (p *PlotConfig) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("width and height must be positive, got %gx%g", p.Width, p.Height)
	}
	return nil
}
