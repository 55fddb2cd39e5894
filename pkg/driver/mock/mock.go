// Package mock provides a recording driver and OCR engine for running flows
// without a real device.
package mock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
)

// Call records one primitive invoked on the driver.
type Call struct {
	Method   string
	Target   core.Target
	End      core.Target
	Duration time.Duration
	Text     string
	Path     string
}

// Config configures mock driver behavior.
type Config struct {
	// FailOnCall makes call N fail (1-indexed). 0 = never fail.
	FailOnCall int
	// CallDelay adds artificial delay per call
	CallDelay time.Duration

	ScreenWidth  int
	ScreenHeight int

	// Present decides whether a target is on screen. nil = always present.
	Present func(target core.Target) bool

	// OCR answers. The funcs win over the fixed values when set.
	Text       string
	Number     int
	TextFunc   func(region core.Region) (string, error)
	NumberFunc func(region core.Region) (int, error)
}

// Driver is a mock implementation of core.Driver and core.OCR.
type Driver struct {
	Config Config

	mu    sync.Mutex
	calls []Call
	count int
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	if cfg.ScreenWidth == 0 {
		cfg.ScreenWidth = 1080
	}
	if cfg.ScreenHeight == 0 {
		cfg.ScreenHeight = 2400
	}
	return &Driver{Config: cfg}
}

// record stores the call and applies the configured delay and failure.
func (d *Driver) record(ctx context.Context, c Call) error {
	d.mu.Lock()
	d.count++
	n := d.count
	d.calls = append(d.calls, c)
	d.mu.Unlock()

	if d.Config.CallDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.Config.CallDelay):
		}
	}
	if d.Config.FailOnCall > 0 && n == d.Config.FailOnCall {
		return fmt.Errorf("mock failure on call %d (%s)", n, c.Method)
	}
	return nil
}

// Calls returns a copy of every recorded call.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallsOf returns the recorded calls of one method.
func (d *Driver) CallsOf(method string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
	d.count = 0
}

// Touch implements core.Driver.
func (d *Driver) Touch(ctx context.Context, target core.Target, duration time.Duration) error {
	return d.record(ctx, Call{Method: "touch", Target: target, Duration: duration})
}

// DoubleClick implements core.Driver.
func (d *Driver) DoubleClick(ctx context.Context, target core.Target) error {
	return d.record(ctx, Call{Method: "double_click", Target: target})
}

// Swipe implements core.Driver.
func (d *Driver) Swipe(ctx context.Context, start, end core.Target, duration time.Duration) error {
	return d.record(ctx, Call{Method: "swipe", Target: start, End: end, Duration: duration})
}

// Wait implements core.Driver. Absent targets time out immediately.
func (d *Driver) Wait(ctx context.Context, target core.Target, timeout time.Duration) error {
	if err := d.record(ctx, Call{Method: "wait", Target: target, Duration: timeout}); err != nil {
		return err
	}
	if !d.present(target) {
		return core.ErrWaitTimeout.WithMessage(fmt.Sprintf("%s did not appear within %v", target, timeout))
	}
	return nil
}

// Exists implements core.Driver.
func (d *Driver) Exists(ctx context.Context, target core.Target) (*core.Point, error) {
	if err := d.record(ctx, Call{Method: "exists", Target: target}); err != nil {
		return nil, err
	}
	if !d.present(target) {
		return nil, nil
	}
	p := d.position(target)
	return &p, nil
}

// Snapshot writes a 1x1 PNG to path.
func (d *Driver) Snapshot(ctx context.Context, path string) (string, error) {
	if err := d.record(ctx, Call{Method: "snapshot", Path: path}); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, pngPixel, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Text implements core.Driver.
func (d *Driver) Text(ctx context.Context, value string) error {
	return d.record(ctx, Call{Method: "text", Text: value})
}

// ScreenSize implements core.Driver.
func (d *Driver) ScreenSize(ctx context.Context) (int, int, error) {
	if err := d.record(ctx, Call{Method: "screen_size"}); err != nil {
		return 0, 0, err
	}
	return d.Config.ScreenWidth, d.Config.ScreenHeight, nil
}

// RecognizeRegionText implements core.OCR.
func (d *Driver) RecognizeRegionText(ctx context.Context, region core.Region) (string, error) {
	if err := d.record(ctx, Call{Method: "ocr_text", Target: region}); err != nil {
		return "", err
	}
	if d.Config.TextFunc != nil {
		return d.Config.TextFunc(region)
	}
	return d.Config.Text, nil
}

// RecognizeRegionNumber implements core.OCR.
func (d *Driver) RecognizeRegionNumber(ctx context.Context, region core.Region) (int, error) {
	if err := d.record(ctx, Call{Method: "ocr_number", Target: region}); err != nil {
		return 0, err
	}
	if d.Config.NumberFunc != nil {
		return d.Config.NumberFunc(region)
	}
	return d.Config.Number, nil
}

func (d *Driver) present(target core.Target) bool {
	if d.Config.Present == nil {
		return true
	}
	return d.Config.Present(target)
}

func (d *Driver) position(target core.Target) core.Point {
	switch t := target.(type) {
	case core.Point:
		return t
	case core.Region:
		return t.Center()
	default:
		return core.Point{X: d.Config.ScreenWidth / 2, Y: d.Config.ScreenHeight / 2}
	}
}

// Minimal valid PNG (1x1 transparent pixel)
var pngPixel = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}

var (
	_ core.Driver = (*Driver)(nil)
	_ core.OCR    = (*Driver)(nil)
)
