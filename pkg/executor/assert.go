package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/selector"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

// Assertion variants.
const (
	AssertText   = "text"
	AssertNumber = "number"
	AssertRegex  = "regex"
	AssertRange  = "range"
	AssertExists = "exists"
	AssertImage  = "image"
)

// Text match modes.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchRegex    = "regex"
)

// actionAssert builds the check for assert_type and polls it until it passes
// or timeout (seconds, default 0 = single attempt) runs out.
func (e *Engine) actionAssert(ctx context.Context, step flow.Step) error {
	assertType := strings.ToLower(step.String("assert_type", AssertText))
	timeout, err := step.Float("timeout", 0)
	if err != nil {
		return err
	}
	interval, err := step.Float("retry_interval", 1)
	if err != nil {
		return err
	}

	check, err := e.assertion(ctx, step, assertType)
	if err != nil {
		return err
	}
	return e.pollUntil(ctx, flow.Seconds(timeout), flow.Seconds(interval), check)
}

// assertion validates the step's configuration once and returns the
// repeatable comparison.
func (e *Engine) assertion(ctx context.Context, step flow.Step, assertType string) (func() error, error) {
	switch assertType {
	case AssertText:
		return e.textAssertion(ctx, step)
	case AssertNumber:
		return e.numberAssertion(ctx, step)
	case AssertRegex:
		return e.regexAssertion(ctx, step)
	case AssertRange:
		return e.rangeAssertion(ctx, step)
	case AssertExists:
		return e.existsAssertion(ctx, step)
	case AssertImage:
		return e.imageAssertion(ctx, step)
	}
	return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf(
		"unknown assert_type %q, supported: text, number, regex, range, exists, image", assertType))
}

// ocrRegion reads the OCR area from ocr_selector or selector. Only region
// selectors are accepted; a string must hold exactly four numbers.
func ocrRegion(step flow.Step) (core.Region, error) {
	sel := step.Get("ocr_selector")
	if !vars.Truthy(sel) {
		sel = step.Get("selector")
	}
	selType := step.StringOr("region", "ocr_selector_type", "selector_type")
	return parseOCRRegion(sel, selType)
}

func parseOCRRegion(sel interface{}, selType string) (core.Region, error) {
	if !vars.Truthy(sel) {
		return core.Region{}, core.ErrMissingRequired.WithMessage("OCR assertion needs selector or ocr_selector for the region")
	}
	if selType != selector.TypeRegion {
		return core.Region{}, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("OCR assertion only supports selector_type=region, got %s", selType))
	}
	if s, ok := sel.(string); ok && len(strings.Split(s, ",")) != 4 {
		return core.Region{}, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("region needs 4 values (x1,y1,x2,y2): %s", s))
	}
	region, err := selector.ParseRegion(sel)
	if err != nil {
		return core.Region{}, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("cannot parse region %v", sel)).WithCause(err)
	}
	return region, nil
}

func groupedInt(field string, v interface{}) (int, error) {
	n, err := vars.ParseGroupedInt(v)
	if err != nil {
		return 0, core.ErrInvalidNumber.WithMessage(fmt.Sprintf("%s is not a number: %v", field, v)).WithCause(err)
	}
	return n, nil
}

func (e *Engine) textAssertion(ctx context.Context, step flow.Step) (func() error, error) {
	if err := e.requireOCR(step); err != nil {
		return nil, err
	}
	region, err := ocrRegion(step)
	if err != nil {
		return nil, err
	}
	expected := step.String("expected", "")
	mode := strings.ToLower(step.String("match_mode", MatchContains))

	var match func(actual string) bool
	switch mode {
	case MatchExact:
		match = func(actual string) bool { return actual == expected }
	case MatchContains:
		match = func(actual string) bool { return strings.Contains(actual, expected) }
	case MatchRegex:
		re, err := regexp.Compile(expected)
		if err != nil {
			return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid regex %q", expected)).WithCause(err)
		}
		match = re.MatchString
	default:
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported match_mode: %s", mode))
	}

	return func() error {
		actual, err := e.ocr.RecognizeRegionText(ctx, region)
		if err != nil {
			return err
		}
		if !match(actual) {
			return core.Assertionf("text assertion failed: expected '%s' (%s), actual '%s'", expected, mode, actual)
		}
		logger.Info("text assertion passed: '%s' (%s) matches '%s'", expected, mode, actual)
		return nil
	}, nil
}

func (e *Engine) numberAssertion(ctx context.Context, step flow.Step) (func() error, error) {
	if err := e.requireOCR(step); err != nil {
		return nil, err
	}
	region, err := ocrRegion(step)
	if err != nil {
		return nil, err
	}
	raw := step.Get("expected")
	if raw == nil {
		raw = "0"
	}
	expected, err := groupedInt("expected", raw)
	if err != nil {
		return nil, err
	}

	return func() error {
		actual, err := e.ocr.RecognizeRegionNumber(ctx, region)
		if err != nil {
			return err
		}
		if actual != expected {
			return core.Assertionf("number assertion failed: expected %d, actual %d", expected, actual)
		}
		logger.Info("number assertion passed: %d", actual)
		return nil
	}, nil
}

func (e *Engine) regexAssertion(ctx context.Context, step flow.Step) (func() error, error) {
	if err := e.requireOCR(step); err != nil {
		return nil, err
	}
	region, err := ocrRegion(step)
	if err != nil {
		return nil, err
	}
	pattern := step.String("expected", "")
	if pattern == "" {
		return nil, core.ErrMissingRequired.WithMessage("regex assertion needs a pattern in expected")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid regex %q", pattern)).WithCause(err)
	}

	return func() error {
		actual, err := e.ocr.RecognizeRegionText(ctx, region)
		if err != nil {
			return err
		}
		loc := re.FindStringIndex(actual)
		if loc == nil {
			return core.Assertionf("regex assertion failed: pattern '%s' does not match '%s'", pattern, actual)
		}
		logger.Info("regex assertion passed: '%s' matched '%s' in '%s'", pattern, actual[loc[0]:loc[1]], actual)
		return nil
	}, nil
}

func (e *Engine) rangeAssertion(ctx context.Context, step flow.Step) (func() error, error) {
	if err := e.requireOCR(step); err != nil {
		return nil, err
	}
	region, err := ocrRegion(step)
	if err != nil {
		return nil, err
	}
	minRaw, maxRaw := step.Get("min"), step.Get("max")
	if minRaw == nil && maxRaw == nil {
		return nil, core.ErrMissingRequired.WithMessage("range assertion needs min or max")
	}

	var minVal, maxVal *int
	if minRaw != nil {
		n, err := groupedInt("min", minRaw)
		if err != nil {
			return nil, err
		}
		minVal = &n
	}
	if maxRaw != nil {
		n, err := groupedInt("max", maxRaw)
		if err != nil {
			return nil, err
		}
		maxVal = &n
	}

	return func() error {
		actual, err := e.ocr.RecognizeRegionNumber(ctx, region)
		if err != nil {
			return err
		}
		if minVal != nil && actual < *minVal {
			return core.Assertionf("range assertion failed: %d is below min %d", actual, *minVal)
		}
		if maxVal != nil && actual > *maxVal {
			return core.Assertionf("range assertion failed: %d is above max %d", actual, *maxVal)
		}
		logger.Info("range assertion passed: %d", actual)
		return nil
	}, nil
}

func (e *Engine) existsAssertion(ctx context.Context, step flow.Step) (func() error, error) {
	if err := e.requireDriver(step); err != nil {
		return nil, err
	}
	target := e.resolver.Resolve(ctx, step)
	if target == nil {
		return nil, unresolved(step)
	}
	want := step.Bool("expected_exists", true)

	return func() error {
		pos, err := e.driver.Exists(ctx, target)
		if err != nil {
			return err
		}
		present := pos != nil
		if want && !present {
			return core.Assertionf("expected %s to exist, but it does not", target)
		}
		if !want && present {
			return core.Assertionf("expected %s to be absent, but it exists", target)
		}
		logger.Info("exists assertion passed: want=%v present=%v", want, present)
		return nil
	}, nil
}

func (e *Engine) imageAssertion(ctx context.Context, step flow.Step) (func() error, error) {
	if err := e.requireDriver(step); err != nil {
		return nil, err
	}
	name := step.String("expected", "")
	if name == "" {
		return nil, core.ErrMissingRequired.WithMessage("image assertion needs the image file name in expected")
	}
	scope := step.StringOr(selector.DefaultImageScope, "expected_image_scope", "image_scope")
	threshold, err := step.Float("image_threshold", selector.DefaultThreshold)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(e.resolver.ImageDir(), scope, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("expected image does not exist: %s", path))
	}
	target := core.ImageTarget{Path: path, Threshold: threshold}

	return func() error {
		pos, err := e.driver.Exists(ctx, target)
		if err != nil {
			return err
		}
		if pos == nil {
			return core.Assertionf("image assertion failed: '%s' not found on screen (threshold %.2f)", name, threshold)
		}
		logger.Info("image assertion passed: '%s' found at %s", name, pos)
		return nil
	}, nil
}

type foreachAssertParams struct {
	MaxLoops   int     `json:"max_loops" default:"5" validate:"gte=0"`
	Interval   float64 `json:"interval" default:"0.5" validate:"gte=0"`
	MatchMode  string  `json:"match_mode" default:"contains" validate:"oneof=exact contains"`
	AssertType string  `json:"assert_type" default:"text" validate:"oneof=text number"`
	MinMatch   int     `json:"min_match" default:"1" validate:"gte=0"`
}

// actionForeachAssert repeatedly taps click_selector and reads the OCR
// region, counting reads that match any entry of expected_list. Fewer than
// min_match matches fails the step.
func (e *Engine) actionForeachAssert(ctx context.Context, step flow.Step) error {
	if err := e.requireDriver(step); err != nil {
		return err
	}
	if err := e.requireOCR(step); err != nil {
		return err
	}
	var p foreachAssertParams
	if err := flow.Decode(step, &p); err != nil {
		return err
	}
	expectedList, ok := asList(step.Get("expected_list"))
	if !ok {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("step '%s': expected_list must be a list", step.Name()))
	}

	clickTarget := e.resolveAlt(ctx, step, "click_", "image_scope", "image_threshold")
	if clickTarget == nil {
		return core.ErrSelectorUnresolved.WithMessage(fmt.Sprintf("step '%s': foreach_assert needs a valid click_selector", step.Name()))
	}
	region, err := parseOCRRegion(step.Get("ocr_selector"), step.String("ocr_selector_type", selector.TypeRegion))
	if err != nil {
		return err
	}

	var expectedNums []int
	if p.AssertType == AssertNumber {
		for _, v := range expectedList {
			n, err := groupedInt("expected_list entry", v)
			if err != nil {
				return err
			}
			expectedNums = append(expectedNums, n)
		}
	}

	matched := 0
	for i := 0; i < p.MaxLoops; i++ {
		logger.Info("foreach_assert %d/%d", i+1, p.MaxLoops)
		if err := e.driver.Touch(ctx, clickTarget, 0); err != nil {
			return err
		}
		if err := e.sleep(ctx, flow.Seconds(p.Interval)); err != nil {
			return err
		}

		var hit bool
		var actual interface{}
		if p.AssertType == AssertNumber {
			n, err := e.ocr.RecognizeRegionNumber(ctx, region)
			if err != nil {
				return err
			}
			actual = n
			for _, want := range expectedNums {
				if n == want {
					hit = true
					break
				}
			}
		} else {
			text, err := e.ocr.RecognizeRegionText(ctx, region)
			if err != nil {
				return err
			}
			actual = text
			for _, v := range expectedList {
				want := vars.ToString(v)
				if (p.MatchMode == MatchExact && text == want) || (p.MatchMode == MatchContains && strings.Contains(text, want)) {
					hit = true
					break
				}
			}
		}

		if hit {
			matched++
			logger.Info("read %d matched: %v", i+1, actual)
		} else {
			logger.Warn("read %d not in expected list: %v", i+1, actual)
		}
	}

	logger.Info("foreach_assert done: %d reads, %d matched", p.MaxLoops, matched)
	if matched < p.MinMatch {
		return core.Assertionf("foreach_assert failed: expected at least %d matches, got %d", p.MinMatch, matched)
	}
	return nil
}
