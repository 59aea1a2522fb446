/*
PURPOSE:
  Compares the results of a training iteration against the objectives of
  the program that produced them.

REQUIREMENTS:
  User-specified:
  - One outcome per objective, in objective order.

  Implementation-discovered:
  - Some objectives are better when lower (loss), so targets carry Minimize.
  - A step may leave an objective unmeasured; that is an outcome, not an error.

ARCHITECTURE INTEGRATION:
  - Called by: internal/trainer (handler)
  - Uses: internal/model

ERROR HANDLING:
  - Compare may fail; the trainer aborts the session on that error.

IMPLEMENTATION RULES:
  - Evaluators are pure: no I/O, no state between calls.

USAGE:
  eval, err := evaluator.Threshold{}.Compare(results, program.Objectives)

SELF-HEALING INSTRUCTIONS:
  - New outcome values must stay short: they are written into CSV cells.

RELATED FILES:
  - internal/trainer/handler.go
  - internal/schema/schema.go

MAINTENANCE:
  - Update the outcome constants when adding comparison modes.
*/

package evaluator

import (
	"github.com/daryltucker/forest-trainer/internal/model"
)

// Outcome values produced by Threshold.
const (
	Met         = "met"
	BelowTarget = "below_target"
	AboveTarget = "above_target"
	Unmeasured  = "unmeasured"
)

// Evaluator compares results with objectives. The returned evaluation
// must hold one outcome per objective, in objective order.
type Evaluator interface {
	Compare(results model.Results, objectives []model.Objective) (model.Evaluation, error)
}

// Func adapts a plain function to Evaluator.
type Func func(results model.Results, objectives []model.Objective) (model.Evaluation, error)

func (f Func) Compare(results model.Results, objectives []model.Objective) (model.Evaluation, error) {
	return f(results, objectives)
}

// Threshold is the default evaluator. An objective is met when its result
// reaches the target: at or above it, or at or below it for objectives that
// minimize.
type Threshold struct{}

func NewThreshold() *Threshold {
	return &Threshold{}
}

func (t *Threshold) Compare(results model.Results, objectives []model.Objective) (model.Evaluation, error) {
	eval := make(model.Evaluation, 0, len(objectives))
	for _, o := range objectives {
		eval = append(eval, model.Outcome{Objective: o.Name, Value: outcome(o, results)})
	}
	return eval, nil
}

func outcome(o model.Objective, results model.Results) string {
	v, ok := results[o.Name]
	switch {
	case !ok:
		return Unmeasured
	case o.Minimize && v <= o.Target:
		return Met
	case o.Minimize:
		return AboveTarget
	case v >= o.Target:
		return Met
	default:
		return BelowTarget
	}
}
