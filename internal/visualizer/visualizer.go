/*
PURPOSE:
  Accumulates training results and renders them as a chart file.

REQUIREMENTS:
  User-specified:
  - Show progress of every objective against its target.
  - Chart is refreshed after each iteration.

  Implementation-discovered:
  - Diverged steps report NaN or Inf; those points are skipped.
  - The rendered chart is released after saving (Clear).

ARCHITECTURE INTEGRATION:
  - Called by: internal/trainer (handler), internal/engine (Options)
  - Dependencies: gonum.org/v1/plot

ERROR HANDLING:
  - Render and save errors are returned; the trainer aborts on them.
  - SaveTo on a cleared chart returns ErrCleared.

IMPLEMENTATION RULES:
  - File format follows the path extension (.png, .svg, .pdf).

USAGE:
  p := visualizer.NewPlot("Training progress", 8, 5)
  p.AddResults(acts, objs, results, eval)
  chart, err := p.Visualize()
  err = chart.SaveTo("run.png")

SELF-HEALING INSTRUCTIONS:
  - If lines share colors, check the plotutil palette index per objective.

RELATED FILES:
  - internal/trainer/handler.go

MAINTENANCE:
  - Update when new series (e.g. activities) should be drawn.
*/

package visualizer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/daryltucker/forest-trainer/internal/model"
)

// Visualizer keeps the result history of a session and renders it on demand.
type Visualizer interface {
	AddResults(activities model.Activities, objectives []model.Objective, results model.Results, evaluation model.Evaluation)
	Visualize() (Renderable, error)
}

// Renderable is a rendered chart.
type Renderable interface {
	// SaveTo writes the chart to path; the image format follows the extension.
	SaveTo(path string) error
	// Clear releases the chart. A cleared chart cannot be saved.
	Clear()
}

// ErrCleared is returned when saving a chart after Clear.
var ErrCleared = errors.New("chart has been cleared")

type series struct {
	name    string
	results plotter.XYs
	targets plotter.XYs
}

// Plot draws one line per objective result and a dashed line for its target,
// with the iteration number on the X axis.
type Plot struct {
	Title  string
	Width  vg.Length
	Height vg.Length

	iterations int
	order      []*series
	byName     map[string]*series
}

// NewPlot creates a visualizer rendering charts of the given size in inches.
func NewPlot(title string, widthIn, heightIn float64) *Plot {
	return &Plot{
		Title:  title,
		Width:  vg.Length(widthIn) * vg.Inch,
		Height: vg.Length(heightIn) * vg.Inch,
		byName: make(map[string]*series),
	}
}

func (p *Plot) AddResults(_ model.Activities, objectives []model.Objective, results model.Results, _ model.Evaluation) {
	x := float64(p.iterations)
	p.iterations++

	for _, o := range objectives {
		s, ok := p.byName[o.Name]
		if !ok {
			s = &series{name: o.Name}
			p.byName[o.Name] = s
			p.order = append(p.order, s)
		}
		if finite(o.Target) {
			s.targets = append(s.targets, plotter.XY{X: x, Y: o.Target})
		}
		if v, ok := results[o.Name]; ok && finite(v) {
			s.results = append(s.results, plotter.XY{X: x, Y: v})
		}
	}
}

// Iterations returns how many iterations have been added.
func (p *Plot) Iterations() int {
	return p.iterations
}

func (p *Plot) Visualize() (Renderable, error) {
	pl := plot.New()
	pl.Title.Text = p.Title
	pl.X.Label.Text = "iteration"
	pl.Y.Label.Text = "value"
	pl.Add(plotter.NewGrid())

	for i, s := range p.order {
		if len(s.results) > 0 {
			line, points, err := plotter.NewLinePoints(s.results)
			if err != nil {
				return nil, fmt.Errorf("results of %s: %w", s.name, err)
			}
			line.Color = plotutil.Color(i)
			points.Color = plotutil.Color(i)
			points.Shape = plotutil.Shape(i)
			pl.Add(line, points)
			pl.Legend.Add(s.name, line, points)
		}
		if len(s.targets) > 0 {
			line, err := plotter.NewLine(s.targets)
			if err != nil {
				return nil, fmt.Errorf("targets of %s: %w", s.name, err)
			}
			line.Color = plotutil.Color(i)
			line.Dashes = plotutil.Dashes(1)
			pl.Add(line)
			pl.Legend.Add(s.name+" target", line)
		}
	}

	return &Chart{plot: pl, width: p.Width, height: p.Height}, nil
}

// Chart is a rendered Plot.
type Chart struct {
	plot   *plot.Plot
	width  vg.Length
	height vg.Length
}

func (c *Chart) SaveTo(path string) error {
	if c.plot == nil {
		return ErrCleared
	}
	return c.plot.Save(c.width, c.height, path)
}

func (c *Chart) Clear() {
	c.plot = nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
