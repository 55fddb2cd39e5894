package executor

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

// Loop modes.
const (
	LoopCount     = "count"
	LoopForeach   = "foreach"
	LoopCondition = "condition"
)

// runSteps executes steps in order and stops at the first error.
func (e *Engine) runSteps(ctx context.Context, steps []flow.Step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.executeStep(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// condition evaluates the step's expression when present, otherwise
// left/operator/right. render is applied to the operands first.
func (e *Engine) condition(step flow.Step, render func(interface{}) interface{}) (bool, string, error) {
	if raw, ok := step["expression"]; ok && raw != nil && raw != "" {
		expression := vars.ToString(render(raw))
		ok, err := e.evalExpression(expression)
		return ok, expression, err
	}
	left := render(step.Get("left"))
	right := render(step.Get("right"))
	op := step.String("operator", "==")
	desc := fmt.Sprintf("%s %s %s", vars.ToString(left), op, vars.ToString(right))
	return EvalCondition(left, op, right), desc, nil
}

func identity(v interface{}) interface{} { return v }

func (e *Engine) actionIf(ctx context.Context, step flow.Step) error {
	ok, desc, err := e.condition(step, identity)
	if err != nil {
		return err
	}

	branch := "else_steps"
	if ok {
		branch = "then_steps"
	}
	steps, err := step.Steps(branch)
	if err != nil {
		return err
	}
	logger.Info("if %s = %v, running %s (%d steps)", desc, ok, branch, len(steps))
	return e.runSteps(ctx, steps)
}

type loopParams struct {
	Mode      string  `json:"mode" default:"count" validate:"oneof=count foreach condition"`
	Times     int     `json:"times" default:"1" validate:"gte=0"`
	MaxLoops  int     `json:"max_loops" default:"10" validate:"gte=0"`
	ItemVar   string  `json:"item_var" default:"item"`
	ItemScope string  `json:"item_scope" default:"local"`
	Interval  float64 `json:"interval" validate:"gte=0"`
}

// actionLoop repeats the body a fixed number of times, once per item, or
// while a condition holds (at most max_loops times).
func (e *Engine) actionLoop(ctx context.Context, step flow.Step) error {
	var p loopParams
	if err := flow.Decode(step, &p); err != nil {
		return err
	}
	body, err := step.Steps("steps")
	if err != nil {
		return err
	}
	interval := flow.Seconds(p.Interval)

	iterate := func() error {
		if err := e.runSteps(ctx, body); err != nil {
			return err
		}
		return e.sleep(ctx, interval)
	}

	switch p.Mode {
	case LoopForeach:
		items, err := loopItems(step)
		if err != nil {
			return err
		}
		scope := vars.ParseScope(p.ItemScope)
		logger.Info("foreach loop over %d items", len(items))
		for i, item := range items {
			logger.Info("iteration %d/%d, %s=%v", i+1, len(items), p.ItemVar, item)
			e.store.Set(p.ItemVar, item, scope)
			if err := iterate(); err != nil {
				return err
			}
		}

	case LoopCondition:
		for n := 0; n < p.MaxLoops; n++ {
			ok, desc, err := e.condition(step, e.store.Render)
			if err != nil {
				return err
			}
			if !ok {
				logger.Info("loop condition %s is false after %d iterations", desc, n)
				return nil
			}
			logger.Info("condition loop iteration %d (%s)", n+1, desc)
			if err := iterate(); err != nil {
				return err
			}
		}
		logger.Warn("loop '%s' stopped at max_loops=%d", step.Name(), p.MaxLoops)

	default:
		logger.Info("count loop: %d times", p.Times)
		for i := 0; i < p.Times; i++ {
			logger.Info("iteration %d/%d", i+1, p.Times)
			if err := iterate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// loopItems returns the foreach list.
func loopItems(step flow.Step) ([]interface{}, error) {
	items, ok := asList(step.Get("items"))
	if !ok {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("step '%s': items must be a list", step.Name()))
	}
	return items, nil
}

// asList accepts a list, nil or an empty string (no items), or a string
// holding a JSON array, which is what a rendered list variable looks like.
func asList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []interface{}:
		return t, true
	case string:
		if t == "" {
			return nil, true
		}
		if gjson.Valid(t) {
			if parsed := gjson.Parse(t); parsed.IsArray() {
				items, _ := parsed.Value().([]interface{})
				return items, true
			}
		}
	}
	return nil, false
}

func (e *Engine) actionSequence(ctx context.Context, step flow.Step) error {
	steps, err := step.Steps("steps")
	if err != nil {
		return err
	}
	logger.Info("sequence: %d steps", len(steps))
	return e.runSteps(ctx, steps)
}

// actionTry runs try_steps; on failure the error text is stored in error_var
// and catch_steps run. finally_steps always run and their error wins.
// Without catch_steps a try failure is swallowed.
func (e *Engine) actionTry(ctx context.Context, step flow.Step) (err error) {
	trySteps, err := step.Steps("try_steps")
	if err != nil {
		return err
	}
	catchSteps, err := step.Steps("catch_steps")
	if err != nil {
		return err
	}
	finallySteps, err := step.Steps("finally_steps")
	if err != nil {
		return err
	}
	errorVar := step.String("error_var", "error")
	errorScope := vars.ParseScope(step.String("error_scope", string(vars.Local)))

	defer func() {
		if len(finallySteps) == 0 {
			return
		}
		logger.Info("running finally block")
		if ferr := e.runSteps(ctx, finallySteps); ferr != nil {
			err = ferr
		}
	}()

	logger.Info("running try block")
	tryErr := e.runSteps(ctx, trySteps)
	if tryErr == nil {
		return nil
	}

	logger.Warn("caught error: %v", tryErr)
	e.store.Set(errorVar, tryErr.Error(), errorScope)
	return e.runSteps(ctx, catchSteps)
}
