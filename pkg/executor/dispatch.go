package executor

import (
	"context"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// actionFunc executes one prepared step.
type actionFunc func(e *Engine, ctx context.Context, step flow.Step) error

// actions maps lower-cased step types to handlers. It is filled in init
// because several handlers re-enter executeStep.
var actions map[flow.StepType]actionFunc

func init() {
	actions = map[flow.StepType]actionFunc{
		// Interaction
		flow.StepClick:       (*Engine).actionClick,
		flow.StepTouch:       (*Engine).actionClick,
		flow.StepInput:       (*Engine).actionInput,
		flow.StepSwipe:       (*Engine).actionSwipe,
		flow.StepDoubleClick: (*Engine).actionDoubleClick,
		flow.StepLongPress:   (*Engine).actionLongPress,
		flow.StepDrag:        (*Engine).actionDrag,
		flow.StepSwipeTo:     (*Engine).actionSwipeTo,

		// Conditional interaction
		flow.StepImageExistsClick:      (*Engine).actionImageExistsClick,
		flow.StepImageExistsClickChain: (*Engine).actionImageExistsClickChain,

		// Utilities
		flow.StepSetVariable:   (*Engine).actionSetVariable,
		flow.StepUnsetVariable: (*Engine).actionUnsetVariable,
		flow.StepExtractOutput: (*Engine).actionExtractOutput,
		flow.StepScreenshot:    (*Engine).actionScreenshot,
		flow.StepAPIRequest:    (*Engine).actionAPIRequest,
		flow.StepRunScript:     (*Engine).actionRunScript,

		// Flow control
		flow.StepWait:     (*Engine).actionWait,
		flow.StepSleep:    (*Engine).actionWait,
		flow.StepIf:       (*Engine).actionIf,
		flow.StepLoop:     (*Engine).actionLoop,
		flow.StepSequence: (*Engine).actionSequence,
		flow.StepTry:      (*Engine).actionTry,

		// Assertions
		flow.StepAssert:        (*Engine).actionAssert,
		flow.StepForeachAssert: (*Engine).actionForeachAssert,
	}
}

// Supported reports whether typ has a built-in handler.
func Supported(typ flow.StepType) bool {
	_, ok := actions[typ]
	return ok
}

// executeStep prepares a step and runs it with step-level retry. Nested
// flows (control flow bodies, component sub-steps) come through here too.
func (e *Engine) executeStep(ctx context.Context, raw flow.Step) error {
	step := e.prepare(raw)
	return e.withStepRetry(ctx, step, func() error {
		return e.dispatch(ctx, step)
	})
}

// prepare copies the step, lifts config entries to the top level and
// renders every field except nested step lists, which are rendered when
// their own turn comes.
func (e *Engine) prepare(raw flow.Step) flow.Step {
	step := raw.Clone()
	if step == nil {
		step = flow.Step{}
	}
	step.MergeConfig()

	rendered := make(flow.Step, len(step))
	for k, v := range step {
		if isDeferred(step, k) {
			rendered[k] = v
			continue
		}
		rendered[k] = e.store.Render(v)
	}
	return rendered
}

// isDeferred reports whether prepare leaves key unrendered. Loop conditions
// are re-evaluated on every iteration, so their operands stay raw as well.
func isDeferred(step flow.Step, key string) bool {
	if flow.IsNestedStepKey(key) {
		return true
	}
	if step.Type() != flow.StepLoop {
		return false
	}
	switch key {
	case "left", "right", "expression":
		return true
	}
	return false
}

// dispatch routes a prepared step to its handler.
func (e *Engine) dispatch(ctx context.Context, step flow.Step) error {
	if step.Kind() == flow.KindCustom {
		return e.expandComponent(ctx, step)
	}

	if handler, ok := actions[step.Type()]; ok {
		return handler(e, ctx, step)
	}

	if _, ok := e.lookupComponent(ctx, step); ok {
		return e.expandComponent(ctx, step)
	}

	logger.Warn("unknown step type %q (step '%s'), skipping", step.RawType(), step.Name())
	return nil
}
