package executor

import (
	"context"
	"fmt"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/component"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

type depthKey struct{}

// reservedConfigKeys are never injected as variables.
var reservedConfigKeys = map[string]bool{"type": true, "name": true, "kind": true, "steps": true}

func componentDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// lookupComponent finds the definition for the step's type, trying the type
// as written and then lower-cased.
func (e *Engine) lookupComponent(ctx context.Context, step flow.Step) (component.Definition, bool) {
	if def, ok := e.components.Lookup(ctx, step.RawType()); ok {
		return def, true
	}
	return e.components.Lookup(ctx, string(step.Type()))
}

// expandComponent runs a custom component step. Inline steps win over the
// registered definition.
func (e *Engine) expandComponent(ctx context.Context, step flow.Step) error {
	steps, err := step.Steps("steps")
	if err != nil {
		return err
	}

	var defaults map[string]interface{}
	if len(steps) == 0 {
		def, ok := e.lookupComponent(ctx, step)
		if !ok {
			return core.ErrComponentNotFound.
				WithMessage(fmt.Sprintf("custom component '%s' not found or not enabled", step.RawType())).
				WithDetails(map[string]interface{}{"type": step.RawType()})
		}
		steps = def.Steps
		defaults = def.DefaultConfig
	}
	return e.runComponent(ctx, step, steps, defaults)
}

// runComponent injects the component configuration into the local scope and
// executes each sub-step through the full step path. Injected variables stay
// in the local scope after the component returns.
func (e *Engine) runComponent(ctx context.Context, step flow.Step, steps []flow.Step, defaults map[string]interface{}) error {
	name := step.Name()
	if len(steps) == 0 {
		logger.Warn("custom component '%s' has no steps, skipping", name)
		return nil
	}

	depth := componentDepth(ctx) + 1
	if depth > e.runtime.MaxComponentDepth {
		return core.ErrComponentDepth.
			WithMessage(fmt.Sprintf("custom component '%s' exceeds nesting depth %d", name, e.runtime.MaxComponentDepth)).
			WithDetails(map[string]interface{}{"type": step.RawType(), "depth": depth})
	}
	ctx = context.WithValue(ctx, depthKey{}, depth)

	for k, v := range defaults {
		if !reservedConfigKeys[k] {
			e.store.Set(k, v, vars.Local)
		}
	}
	for k, v := range step.Config() {
		if !reservedConfigKeys[k] {
			e.store.Set(k, v, vars.Local)
		}
	}

	logger.Info("expanding custom component '%s' (%s): %d sub-steps", name, step.RawType(), len(steps))
	for i, sub := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("  component sub-step %d/%d: %s", i+1, len(steps), sub.Name())
		if err := e.executeStep(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}
