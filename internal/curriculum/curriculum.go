/*
PURPOSE:
  Defines the curriculum a trainer follows and a file-backed implementation.
  A curriculum hands out programs (activities + objectives) one at a time.

REQUIREMENTS:
  User-specified:
  - Programs are declared in a YAML or TOML file.
  - Each program may be repeated for several iterations.

  Implementation-discovered:
  - Activity/objective order in the file becomes column order in the log,
    so lists are used instead of maps.
  - Names must be unique inside a program, otherwise columns collide.

ARCHITECTURE INTEGRATION:
  - Used by: internal/trainer (Current), internal/session (Current, Advance),
    internal/cli
  - Dependencies: gopkg.in/yaml.v3, github.com/pelletier/go-toml/v2

ERROR HANDLING:
  - Load returns explicit errors for unreadable, unparsable or invalid files.

IMPLEMENTATION RULES:
  - Static is not safe for concurrent use; the session drives it sequentially.

USAGE:
  c, err := curriculum.Load("curriculum.yaml")
  p := c.Current()
  more := c.Advance()

SELF-HEALING INSTRUCTIONS:
  - Unknown keys are rejected; check field names against File/Step.

RELATED FILES:
  - internal/session/session.go

MAINTENANCE:
  - Update File when new per-program settings are introduced.
*/

package curriculum

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/daryltucker/forest-trainer/internal/model"
)

// Curriculum produces the program to train on right now.
type Curriculum interface {
	// Current returns the program for the next iteration.
	Current() model.Program
	// Advance moves to the next program and reports whether one is left.
	Advance() bool
}

// Step is one program of a curriculum file.
type Step struct {
	// Repeat is how many iterations the program runs for; 0 means 1.
	Repeat     int               `yaml:"repeat" toml:"repeat"`
	Activities model.Activities  `yaml:"activities" toml:"activities"`
	Objectives []model.Objective `yaml:"objectives" toml:"objectives"`
}

// File is the on-disk curriculum format.
type File struct {
	Programs []Step `yaml:"programs" toml:"programs"`
}

// Static walks a fixed list of programs in order.
type Static struct {
	steps []Step
	step  int
	iter  int
}

// NewStatic validates steps and returns a curriculum positioned on the first one.
func NewStatic(steps []Step) (*Static, error) {
	if len(steps) == 0 {
		return nil, errors.New("curriculum has no programs")
	}

	var errs []error
	for i, s := range steps {
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("program %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Static{steps: slices.Clone(steps)}, nil
}

func (s Step) validate() error {
	var errs []error
	if s.Repeat < 0 {
		errs = append(errs, fmt.Errorf("repeat must be non-negative, got %d", s.Repeat))
	}
	if err := uniqueNames("activity", s.Activities.Names()); err != nil {
		errs = append(errs, err)
	}
	if err := uniqueNames("objective", model.ObjectiveNames(s.Objectives)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func uniqueNames(kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("%s name cannot be empty", kind)
		}
		if seen[n] {
			return fmt.Errorf("duplicate %s %q", kind, n)
		}
		seen[n] = true
	}
	return nil
}

// Current returns the active program. After the curriculum is exhausted it
// keeps returning the last one.
func (c *Static) Current() model.Program {
	s := c.steps[min(c.step, len(c.steps)-1)]
	return model.Program{
		Activities: slices.Clone(s.Activities),
		Objectives: slices.Clone(s.Objectives),
	}
}

func (c *Static) Advance() bool {
	if c.step >= len(c.steps) {
		return false
	}
	c.iter++
	if c.iter >= max(c.steps[c.step].Repeat, 1) {
		c.step++
		c.iter = 0
	}
	return c.step < len(c.steps)
}

// Iterations returns the total number of iterations the curriculum describes.
func (c *Static) Iterations() int {
	total := 0
	for _, s := range c.steps {
		total += max(s.Repeat, 1)
	}
	return total
}

// Load reads a curriculum file. The format is chosen by extension:
// .yaml/.yml or .toml.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curriculum: %w", err)
	}

	f, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse curriculum %s: %w", path, err)
	}

	c, err := NewStatic(f.Programs)
	if err != nil {
		return nil, fmt.Errorf("invalid curriculum %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes curriculum data in the format named by ext.
func Parse(data []byte, ext string) (*File, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, err
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported curriculum format %q (valid: .yaml, .yml, .toml)", ext)
	}
	return &f, nil
}
