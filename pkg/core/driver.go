package core

import (
	"context"
	"fmt"
	"time"
)

// TargetKind identifies the variant of a resolved Target.
type TargetKind string

// Target kinds.
const (
	TargetImage  TargetKind = "image"
	TargetPoint  TargetKind = "pos"
	TargetRegion TargetKind = "region"
)

// Target is a resolved on-screen location. The set of variants is closed:
// ImageTarget, Point and Region.
type Target interface {
	Kind() TargetKind
	String() string
}

// ImageTarget locates the screen area matching a template image.
type ImageTarget struct {
	Path      string  `json:"path"`
	Threshold float64 `json:"threshold"`
}

// Kind implements Target.
func (ImageTarget) Kind() TargetKind { return TargetImage }

func (t ImageTarget) String() string {
	return fmt.Sprintf("Template(%s, threshold=%.2f)", t.Path, t.Threshold)
}

// Point is an absolute screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Kind implements Target.
func (Point) Kind() TargetKind { return TargetPoint }

func (p Point) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Y) }

// Region is a rectangle given by its top-left and bottom-right corners.
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Kind implements Target.
func (Region) Kind() TargetKind { return TargetRegion }

func (r Region) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", r.X1, r.Y1, r.X2, r.Y2)
}

// Center returns the center point of the region
func (r Region) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Driver is the automation backend the interpreter drives.
// Implementations: remote device agent, mock.
// The Engine handles flow logic; Driver just executes individual primitives.
type Driver interface {
	// Touch taps the target. A positive duration performs a long press.
	Touch(ctx context.Context, target Target, duration time.Duration) error

	// DoubleClick double taps the target.
	DoubleClick(ctx context.Context, target Target) error

	// Swipe drags from start to end over duration.
	Swipe(ctx context.Context, start, end Target, duration time.Duration) error

	// Wait blocks until the target appears or timeout elapses.
	Wait(ctx context.Context, target Target, timeout time.Duration) error

	// Exists returns the match position, or nil when the target is not on screen.
	Exists(ctx context.Context, target Target) (*Point, error)

	// Snapshot saves a screenshot to path and returns the path actually written.
	Snapshot(ctx context.Context, path string) (string, error)

	// Text types text into the focused field.
	Text(ctx context.Context, value string) error

	// ScreenSize returns the current resolution in pixels.
	ScreenSize(ctx context.Context) (width, height int, err error)
}

// OCR recognizes text inside a screen region.
type OCR interface {
	RecognizeRegionText(ctx context.Context, region Region) (string, error)
	RecognizeRegionNumber(ctx context.Context, region Region) (int, error)
}

// Element types stored by the element repository.
const (
	ElementImage  = "image"
	ElementPos    = "pos"
	ElementRegion = "region"
)

// Element is a named, reusable selector managed outside the interpreter.
type Element struct {
	ID         int64                  `json:"id" yaml:"id"`
	Name       string                 `json:"name" yaml:"name"`
	Type       string                 `json:"element_type" yaml:"element_type"`
	Config     map[string]interface{} `json:"config" yaml:"config"`
	Active     bool                   `json:"is_active" yaml:"is_active"`
	UsageCount int                    `json:"usage_count" yaml:"usage_count"`
}
