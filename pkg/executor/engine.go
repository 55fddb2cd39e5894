// Package executor interprets UI flows: it dispatches steps to action
// handlers, drives control flow, expands custom components and aggregates
// the run result.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/apiclient"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/component"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/config"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/jsengine"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/selector"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Dependencies are the collaborators an Engine drives. Only Driver is needed
// for interaction steps; everything else is optional.
type Dependencies struct {
	Driver     core.Driver
	OCR        core.OCR
	Elements   selector.ElementRepository
	Components component.Repository
	HTTP       *apiclient.Client

	ImageDir      string
	ScreenshotDir string

	// Runtime holds the base options a run's own runtime map is merged over.
	// The zero value means config.DefaultRuntime().
	Runtime *config.Runtime

	Sleep SleepFunc
}

// StepOutcome records how one top-level step ended.
type StepOutcome struct {
	Index      int             `json:"index"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Status     core.StepStatus `json:"status"`
	Error      string          `json:"error,omitempty"`
	Category   string          `json:"category,omitempty"`
	Screenshot string          `json:"screenshot,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// Result is the aggregate outcome of one run.
type Result struct {
	Total   int                    `json:"total"`
	Passed  int                    `json:"passed"`
	Failed  int                    `json:"failed"`
	Outputs map[string]interface{} `json:"outputs"`
	Steps   []StepOutcome          `json:"steps"`
}

// Engine runs flows against one device. The variable store and component
// cache belong to the engine, so concurrent runs need separate engines.
type Engine struct {
	driver     core.Driver
	ocr        core.OCR
	resolver   *selector.Resolver
	components *component.Registry
	http       *apiclient.Client
	scripts    *jsengine.Engine

	screenshotDir string
	base          config.Runtime
	runtime       config.Runtime
	sleepFn       SleepFunc

	store *vars.Store
}

// New creates an Engine.
func New(deps Dependencies) *Engine {
	base := config.DefaultRuntime()
	if deps.Runtime != nil {
		base = *deps.Runtime
	}
	httpClient := deps.HTTP
	if httpClient == nil {
		httpClient = apiclient.New()
	}
	sleepFn := deps.Sleep
	if sleepFn == nil {
		sleepFn = sleepCtx
	}
	return &Engine{
		driver:        deps.Driver,
		ocr:           deps.OCR,
		resolver:      selector.New(deps.ImageDir, deps.Elements),
		components:    component.NewRegistry(deps.Components),
		http:          httpClient,
		screenshotDir: deps.ScreenshotDir,
		base:          base,
		runtime:       base,
		sleepFn:       sleepFn,
		store:         vars.NewStore(),
	}
}

// Store exposes the variable store of the current or last run.
func (e *Engine) Store() *vars.Store { return e.store }

// RunDocument runs a parsed flow document.
func (e *Engine) RunDocument(ctx context.Context, doc *flow.Document, progress ProgressFunc) (*Result, error) {
	return e.Run(ctx, doc.Steps, doc.Variables, doc.Runtime, progress)
}

// Run executes steps in order. Every top-level step emits a running event
// followed by passed or failed. A failing step is counted and the run goes
// on unless stop_on_error is set, in which case the partial result is
// returned together with the step's error. Cancelling ctx stops the run
// before the next step.
func (e *Engine) Run(ctx context.Context, steps []flow.Step, variables []flow.Variable, runtime map[string]interface{}, progress ProgressFunc) (*Result, error) {
	e.store.Reset()

	rt, err := config.MergeRuntime(e.base, runtime)
	if err != nil {
		return nil, core.ErrInvalidConfig.WithMessage(err.Error()).WithCause(err)
	}
	e.runtime = rt

	for _, v := range variables {
		if v.Name == "" {
			continue
		}
		e.store.Set(v.Name, v.Value, vars.ParseScope(v.Scope))
	}

	total := len(steps)
	result := &Result{Total: total, Steps: make([]StepOutcome, 0, total)}
	finish := func() *Result {
		result.Outputs = e.store.Snapshot(vars.Outputs)
		return result
	}

	logger.Info("Run started: %d steps", total)
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			logger.Warn("Run cancelled before step %d: %v", i+1, err)
			return finish(), err
		}

		idx := i + 1
		name := step.Name()
		notify(progress, idx, total, name, core.StatusRunning)
		logger.Info("[%d/%d] %s", idx, total, step.Describe())

		start := time.Now()
		err := e.executeStep(ctx, step)
		outcome := StepOutcome{
			Index:    idx,
			Name:     name,
			Type:     step.RawType(),
			Duration: time.Since(start),
		}

		if err != nil {
			result.Failed++
			outcome.Status = core.StatusFailed
			outcome.Error = err.Error()
			outcome.Category = core.CategoryOf(err).String()
			logger.Error("[%d/%d] %s failed: %v", idx, total, name, err)
			outcome.Screenshot = e.captureFailure(ctx, idx, name)
			result.Steps = append(result.Steps, outcome)
			notify(progress, idx, total, name, core.StatusFailed)
			if e.runtime.StopOnError {
				return finish(), err
			}
			continue
		}

		result.Passed++
		outcome.Status = core.StatusPassed
		result.Steps = append(result.Steps, outcome)
		notify(progress, idx, total, name, core.StatusPassed)
	}

	logger.Info("Run finished: total=%d passed=%d failed=%d", result.Total, result.Passed, result.Failed)
	return finish(), nil
}

// captureFailure saves a screenshot for a failed top-level step when enabled
// and returns its path.
func (e *Engine) captureFailure(ctx context.Context, idx int, name string) string {
	if !e.runtime.ScreenshotOnFailure || e.driver == nil || e.screenshotDir == "" {
		return ""
	}
	if err := os.MkdirAll(e.screenshotDir, 0o755); err != nil {
		logger.Warn("cannot create screenshot dir %s: %v", e.screenshotDir, err)
		return ""
	}
	path := filepath.Join(e.screenshotDir, fmt.Sprintf("failed_%02d_%s.png", idx, safeFileName(name)))
	saved, err := e.driver.Snapshot(ctx, path)
	if err != nil {
		logger.Warn("failure screenshot for step %d not saved: %v", idx, err)
		return ""
	}
	logger.Info("failure screenshot saved: %s", saved)
	return saved
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return e.sleepFn(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// requireDriver fails steps that need a device when none is attached.
func (e *Engine) requireDriver(step flow.Step) error {
	if e.driver == nil {
		return core.ErrDeviceDisconnected.WithMessage(fmt.Sprintf("step '%s' needs a device but no driver is attached", step.Name()))
	}
	return nil
}

func (e *Engine) requireOCR(step flow.Step) error {
	if e.ocr == nil {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("step '%s' needs OCR but no OCR engine is configured", step.Name()))
	}
	return nil
}
