package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/selector"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

const (
	inputFocusDelay = 300 * time.Millisecond
	chainClickDelay = 500 * time.Millisecond
	swipeDuration   = 500 * time.Millisecond
)

var unsafeFileChars = regexp.MustCompile(`[^0-9a-zA-Z_\-]+`)

func safeFileName(s string) string {
	s = strings.Trim(unsafeFileChars.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return "step"
	}
	return s
}

// unresolved is the error for steps whose target is mandatory.
func unresolved(step flow.Step) error {
	return core.ErrSelectorUnresolved.
		WithMessage(fmt.Sprintf("step '%s' could not resolve its selector, check selector or element_id", step.Name())).
		WithDetails(map[string]interface{}{"step": step.Name()})
}

// resolveAlt resolves a selector stored under prefixed keys, such as
// start_selector/start_selector_type for drag.
func (e *Engine) resolveAlt(ctx context.Context, step flow.Step, prefix, scopeKey, thresholdKey string) core.Target {
	sel := step.Get(prefix + "selector")
	if sel == nil || sel == "" {
		return nil
	}
	alt := flow.Step{
		"name":          step.Name(),
		"selector":      sel,
		"selector_type": step.String(prefix+"selector_type", selector.TypeImage),
		"image_scope":   step.String(scopeKey, selector.DefaultImageScope),
	}
	if thresholdKey != "" && step.Has(thresholdKey) {
		alt["image_threshold"] = step.Get(thresholdKey)
	}
	return e.resolver.Resolve(ctx, alt)
}

// ---- interaction ----

func (e *Engine) actionClick(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	target := e.resolver.Resolve(ctx, step)
	if target == nil {
		return unresolved(step)
	}
	logger.Info("touch %s", target)
	return e.driver.Touch(ctx, target, 0)
}

func (e *Engine) actionInput(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	if target := e.resolver.Resolve(ctx, step); target != nil {
		if err := e.driver.Touch(ctx, target, 0); err != nil {
			return err
		}
		if err := e.sleep(ctx, inputFocusDelay); err != nil {
			return err
		}
	}
	value := step.String("value", "")
	logger.Info("input text: %s", value)
	return e.driver.Text(ctx, value)
}

type swipeParams struct {
	Start    interface{} `json:"start" validate:"required"`
	End      interface{} `json:"end" validate:"required"`
	Duration float64     `json:"duration" default:"0.5" validate:"gte=0"`
}

func (e *Engine) actionSwipe(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	var p swipeParams
	if err := flow.Decode(step, &p); err != nil {
		return err
	}
	start, err := selector.ParsePoint(p.Start)
	if err != nil {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("step '%s': invalid start %v", step.Name(), p.Start)).WithCause(err)
	}
	end, err := selector.ParsePoint(p.End)
	if err != nil {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("step '%s': invalid end %v", step.Name(), p.End)).WithCause(err)
	}
	logger.Info("swipe %s -> %s", start, end)
	return e.driver.Swipe(ctx, start, end, flow.Seconds(p.Duration))
}

func (e *Engine) actionDoubleClick(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	target := e.resolver.Resolve(ctx, step)
	if target == nil {
		logger.Warn("double_click '%s': no target, skipping", step.Name())
		return nil
	}
	logger.Info("double click %s", target)
	return e.driver.DoubleClick(ctx, target)
}

type longPressParams struct {
	Duration float64 `json:"duration" default:"2" validate:"gte=0"`
}

func (e *Engine) actionLongPress(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	var p longPressParams
	if err := flow.Decode(step, &p); err != nil {
		return err
	}
	target := e.resolver.Resolve(ctx, step)
	if target == nil {
		logger.Warn("long_press '%s': no target, skipping", step.Name())
		return nil
	}
	logger.Info("long press %s for %gs", target, p.Duration)
	return e.driver.Touch(ctx, target, flow.Seconds(p.Duration))
}

type dragParams struct {
	Duration float64 `json:"duration" default:"0.8" validate:"gte=0"`
}

func (e *Engine) actionDrag(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	var p dragParams
	if err := flow.Decode(step, &p); err != nil {
		return err
	}
	start := e.resolveAlt(ctx, step, "start_", "image_scope", "")
	end := e.resolveAlt(ctx, step, "end_", "image_scope", "")
	if start == nil || end == nil {
		logger.Warn("drag '%s': start or end not resolved, skipping", step.Name())
		return nil
	}
	logger.Info("drag %s -> %s", start, end)
	return e.driver.Swipe(ctx, start, end, flow.Seconds(p.Duration))
}

type swipeToParams struct {
	Direction string  `json:"direction" default:"up" validate:"oneof=up down left right"`
	MaxSwipes int     `json:"max_swipes" default:"5" validate:"gte=0"`
	Interval  float64 `json:"interval" default:"0.5" validate:"gte=0"`
}

// actionSwipeTo swipes across the screen until the target shows up. Running
// out of swipes is logged, not failed.
func (e *Engine) actionSwipeTo(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	var p swipeToParams
	if err := flow.Decode(step, &p); err != nil {
		return err
	}
	target := e.resolveAlt(ctx, step, "target_", "image_scope", "")
	if target == nil {
		return unresolved(step)
	}

	for i := 0; i < p.MaxSwipes; i++ {
		pos, err := e.driver.Exists(ctx, target)
		if err != nil {
			return err
		}
		if pos != nil {
			logger.Info("target %s found at %s, stop swiping", target, pos)
			return nil
		}

		w, h, err := e.driver.ScreenSize(ctx)
		if err != nil {
			return err
		}
		from, to := swipeVector(p.Direction, w, h)
		logger.Info("swipe %d/%d: %s", i+1, p.MaxSwipes, p.Direction)
		if err := e.driver.Swipe(ctx, from, to, swipeDuration); err != nil {
			return err
		}
		if err := e.sleep(ctx, flow.Seconds(p.Interval)); err != nil {
			return err
		}
	}

	logger.Warn("target %s not found after %d swipes", target, p.MaxSwipes)
	return nil
}

// swipeVector returns the start and end points of a swipe spanning 30% to
// 70% of the screen in the given direction.
func swipeVector(direction string, w, h int) (core.Point, core.Point) {
	cx, cy := w/2, h/2
	near := func(n int) int { return n * 3 / 10 }
	far := func(n int) int { return n * 7 / 10 }
	switch direction {
	case "down":
		return core.Point{X: cx, Y: near(h)}, core.Point{X: cx, Y: far(h)}
	case "left":
		return core.Point{X: far(w), Y: cy}, core.Point{X: near(w), Y: cy}
	case "right":
		return core.Point{X: near(w), Y: cy}, core.Point{X: far(w), Y: cy}
	default:
		return core.Point{X: cx, Y: far(h)}, core.Point{X: cx, Y: near(h)}
	}
}

// ---- conditional interaction ----

// actionImageExistsClick touches the main target when it is on screen and
// the fallback target otherwise.
func (e *Engine) actionImageExistsClick(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	main := e.resolver.Resolve(ctx, step)
	fallback := e.resolveAlt(ctx, step, "fallback_", "fallback_image_scope", "fallback_image_threshold")

	if main != nil {
		pos, err := e.driver.Exists(ctx, main)
		if err != nil {
			return err
		}
		if pos != nil {
			logger.Info("main target present, touch %s", main)
			return e.driver.Touch(ctx, main, 0)
		}
	}
	if fallback != nil {
		logger.Info("main target absent, touch fallback %s", fallback)
		return e.driver.Touch(ctx, fallback, 0)
	}
	logger.Warn("image_exists_click '%s': neither main nor fallback target available", step.Name())
	return nil
}

// actionImageExistsClickChain touches the main target when present, then
// always touches the fallback.
func (e *Engine) actionImageExistsClickChain(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	main := e.resolver.Resolve(ctx, step)
	fallback := e.resolveAlt(ctx, step, "fallback_", "fallback_image_scope", "fallback_image_threshold")

	if main != nil {
		pos, err := e.driver.Exists(ctx, main)
		if err != nil {
			return err
		}
		if pos != nil {
			logger.Info("main target present, touch %s then fallback", main)
			if err := e.driver.Touch(ctx, main, 0); err != nil {
				return err
			}
			if err := e.sleep(ctx, chainClickDelay); err != nil {
				return err
			}
		}
	}
	if fallback != nil {
		return e.driver.Touch(ctx, fallback, 0)
	}
	return nil
}

// ---- utilities ----

func (e *Engine) actionSetVariable(_ context.Context, step flow.Step) error {
	name := step.String("name", "")
	if name == "" {
		logger.Warn("set_variable without name, skipping")
		return nil
	}
	scope := vars.ParseScope(step.String("scope", string(vars.Local)))
	value := step.Get("value")
	e.store.Set(name, value, scope)
	logger.Info("set %s.%s = %v", scope, name, value)
	return nil
}

func (e *Engine) actionUnsetVariable(_ context.Context, step flow.Step) error {
	name := step.String("name", "")
	scope := vars.Scope(strings.ToLower(step.String("scope", string(vars.Local))))
	if name != "" && e.store.Unset(name, scope) {
		logger.Info("unset %s.%s", scope, name)
	}
	return nil
}

// actionExtractOutput walks path through a variable and stores the result.
// source is a variable name or "scope.name".
func (e *Engine) actionExtractOutput(_ context.Context, step flow.Step) error {
	name := step.String("name", "")
	source := step.String("source", "")
	if name == "" {
		return core.ErrMissingRequired.WithMessage("extract_output requires name (the variable to store into)")
	}
	if source == "" {
		return core.ErrMissingRequired.WithMessage("extract_output requires source (the variable to read)")
	}

	value := e.store.Get(source)
	if value == nil {
		if sc, key, ok := strings.Cut(source, "."); ok && e.store.Has(vars.Scope(sc)) {
			value, _ = e.store.GetScoped(key, vars.Scope(sc))
		}
	}
	if value == nil {
		return core.ErrExtractFailed.
			WithMessage(fmt.Sprintf("source variable %s does not exist", source)).
			WithDetails(map[string]interface{}{"source": source})
	}

	path := step.String("path", "")
	extracted, err := vars.Extract(value, path)
	if err != nil {
		return err
	}

	scope := vars.ParseScope(step.String("scope", string(vars.Local)))
	e.store.Set(name, extracted, scope)
	logger.Info("extracted %s.%s -> %s.%s = %v", source, path, scope, name, extracted)
	return nil
}

// actionScreenshot saves a screenshot named after the step. With save_as the
// written path is stored as a variable.
func (e *Engine) actionScreenshot(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	name := step.String("name", fmt.Sprintf("snapshot_%d", time.Now().Unix()))
	dir := e.screenshotDir
	if dir == "" {
		dir = "screenshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	path := filepath.Join(dir, safeFileName(name)+".png")
	logger.Info("screenshot: %s", path)
	saved, err := e.driver.Snapshot(ctx, path)
	if err != nil {
		return err
	}
	if saveAs := step.String("save_as", ""); saveAs != "" {
		e.store.Set(saveAs, saved, vars.ParseScope(step.String("scope", string(vars.Local))))
	}
	return nil
}

// actionWait waits for a target when the step names one, otherwise it
// sleeps. The duration comes from timeout, then duration, default 3s.
func (e *Engine) actionWait(ctx context.Context, step flow.Step) error {
	key := "timeout"
	if !step.Has(key) {
		key = "duration"
	}
	secs, err := step.Float(key, 3)
	if err != nil {
		return err
	}
	d := flow.Seconds(secs)

	if step.Has("selector") || step.Has("element_id") {
		if target := e.resolver.Resolve(ctx, step); target != nil {
			if err := e.requireDriver(step); err != nil {
				return err
			}
			logger.Info("wait for %s (timeout %gs)", target, secs)
			return e.driver.Wait(ctx, target, d)
		}
	}

	logger.Info("sleep %gs", secs)
	return e.sleep(ctx, d)
}
