// Package selector turns a step's locator fields into a concrete screen target.
package selector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

// Selector types.
const (
	TypeImage  = "image"
	TypePos    = "pos"
	TypeRegion = "region"
)

// DefaultThreshold is the template match threshold used when none is given.
const DefaultThreshold = 0.7

// DefaultImageScope is the image sub-directory used when a step names none.
const DefaultImageScope = "common"

// ElementRepository supplies named elements.
type ElementRepository interface {
	// ActiveElement returns the active element with id, or nil when there is none.
	ActiveElement(ctx context.Context, id int64) (*core.Element, error)
	// IncrementUsage bumps the element's usage counter.
	IncrementUsage(ctx context.Context, id int64) error
}

// Resolver resolves selectors against an image directory and an element repository.
type Resolver struct {
	imageDir string
	elements ElementRepository
}

// New creates a Resolver. elements may be nil, in which case element_id lookups miss.
func New(imageDir string, elements ElementRepository) *Resolver {
	return &Resolver{imageDir: imageDir, elements: elements}
}

// ImageDir returns the base directory for image templates.
func (r *Resolver) ImageDir() string { return r.imageDir }

// Resolve returns the step's target, or nil when it cannot be resolved.
// Failures are logged, never returned.
func (r *Resolver) Resolve(ctx context.Context, step flow.Step) core.Target {
	if raw, ok := step["element_id"]; ok && vars.Truthy(raw) {
		id, err := ParseElementID(raw)
		if err != nil {
			logger.Warn("invalid element_id %v in step '%s': %v", raw, step.Name(), err)
			return nil
		}
		return r.resolveElement(ctx, id)
	}

	selectorType := step.String("selector_type", TypeImage)
	sel := step.Get("selector")

	switch selectorType {
	case TypeImage:
		name := vars.ToString(sel)
		if name == "" {
			logger.Warn("image selector is empty in step '%s'", step.Name())
			return nil
		}
		path := filepath.Join(r.imageDir, step.String("image_scope", DefaultImageScope), name)
		if !isFile(path) {
			logger.Warn("image file does not exist: %s", path)
			return nil
		}
		return core.ImageTarget{Path: path, Threshold: threshold(step.Get("image_threshold"))}

	case TypePos:
		p, err := ParsePoint(sel)
		if err != nil {
			logger.Warn("invalid pos selector %v: %v", sel, err)
			return nil
		}
		return p

	case TypeRegion:
		reg, err := ParseRegion(sel)
		if err != nil {
			logger.Warn("invalid region selector %v: %v", sel, err)
			return nil
		}
		return reg
	}

	logger.Warn("unknown selector type: %s", selectorType)
	return nil
}

func (r *Resolver) resolveElement(ctx context.Context, id int64) core.Target {
	if r.elements == nil {
		logger.Warn("element not found: element_id=%d (no element repository)", id)
		return nil
	}

	el, err := r.elements.ActiveElement(ctx, id)
	if err != nil {
		logger.Error("failed to load element %d: %v", id, err)
		return nil
	}
	if el == nil {
		logger.Warn("element not found: element_id=%d", id)
		return nil
	}

	if err := r.elements.IncrementUsage(ctx, id); err != nil {
		logger.Warn("failed to record usage of element %d: %v", id, err)
	}

	cfg := el.Config
	switch el.Type {
	case core.ElementImage:
		rel := vars.ToString(cfg["image_path"])
		if rel == "" {
			logger.Warn("element %d has an empty image_path", id)
			return nil
		}
		path := filepath.Join(r.imageDir, rel)
		if !isFile(path) {
			logger.Warn("image file does not exist: %s", path)
			return nil
		}
		return core.ImageTarget{Path: path, Threshold: threshold(cfg["image_threshold"])}

	case core.ElementPos:
		p, err := ParsePoint([]interface{}{cfg["x"], cfg["y"]})
		if err != nil {
			logger.Warn("element %d has invalid coordinates: %v", id, err)
			return nil
		}
		return p

	case core.ElementRegion:
		reg, err := ParseRegion([]interface{}{cfg["x1"], cfg["y1"], cfg["x2"], cfg["y2"]})
		if err != nil {
			logger.Warn("element %d has invalid region: %v", id, err)
			return nil
		}
		return reg
	}

	logger.Warn("element %d has unknown type %q", id, el.Type)
	return nil
}

// ParseElementID coerces an element_id field to int64.
func ParseElementID(v interface{}) (int64, error) {
	n, err := vars.ToInt(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("element id must be positive, got %d", n)
	}
	return int64(n), nil
}

// ParsePoint parses "x,y" or a list with at least two numbers.
func ParsePoint(v interface{}) (core.Point, error) {
	nums, err := parseInts(v, 2)
	if err != nil {
		return core.Point{}, err
	}
	return core.Point{X: nums[0], Y: nums[1]}, nil
}

// ParseRegion parses "x1,y1,x2,y2" or a list with at least four numbers.
func ParseRegion(v interface{}) (core.Region, error) {
	nums, err := parseInts(v, 4)
	if err != nil {
		return core.Region{}, err
	}
	return core.Region{X1: nums[0], Y1: nums[1], X2: nums[2], Y2: nums[3]}, nil
}

func parseInts(v interface{}, n int) ([]int, error) {
	switch t := v.(type) {
	case string:
		parts := strings.Split(t, ",")
		if len(parts) < n {
			return nil, fmt.Errorf("need %d comma-separated values, got %q", n, t)
		}
		out := make([]int, n)
		for i := 0; i < n; i++ {
			x, err := strconv.Atoi(strings.TrimSpace(parts[i]))
			if err != nil {
				return nil, fmt.Errorf("value %d of %q is not an integer", i+1, t)
			}
			out[i] = x
		}
		return out, nil

	case []interface{}:
		if len(t) < n {
			return nil, fmt.Errorf("need %d values, got %d", n, len(t))
		}
		out := make([]int, n)
		for i := 0; i < n; i++ {
			f, err := vars.ToFloat(t[i])
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", i+1, err)
			}
			out[i] = int(f)
		}
		return out, nil

	case []int:
		if len(t) < n {
			return nil, fmt.Errorf("need %d values, got %d", n, len(t))
		}
		return t[:n], nil

	case nil:
		return nil, fmt.Errorf("selector is empty")

	default:
		return nil, fmt.Errorf("unsupported selector value %T", v)
	}
}

func threshold(v interface{}) float64 {
	if v == nil || v == "" {
		return DefaultThreshold
	}
	f, err := vars.ToFloat(v)
	if err != nil {
		logger.Warn("invalid image_threshold %v, using %.1f", v, DefaultThreshold)
		return DefaultThreshold
	}
	return f
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
