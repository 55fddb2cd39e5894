package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// Driver implements core.Driver and core.OCR on top of a Client.
type Driver struct {
	client  *Client
	screenW int
	screenH int
}

// NewDriver creates a driver for the agent at serverURL.
func NewDriver(serverURL string, opts Options) *Driver {
	return &Driver{client: NewClient(serverURL, opts)}
}

// Client returns the underlying agent client.
func (d *Driver) Client() *Client {
	return d.client
}

// Touch implements core.Driver.
func (d *Driver) Touch(ctx context.Context, target core.Target, duration time.Duration) error {
	_, err := d.client.post(ctx, "/touch", map[string]interface{}{
		"target":      encodeTarget(target),
		"duration_ms": duration.Milliseconds(),
	})
	return err
}

// DoubleClick implements core.Driver.
func (d *Driver) DoubleClick(ctx context.Context, target core.Target) error {
	_, err := d.client.post(ctx, "/double_click", map[string]interface{}{
		"target": encodeTarget(target),
	})
	return err
}

// Swipe implements core.Driver.
func (d *Driver) Swipe(ctx context.Context, start, end core.Target, duration time.Duration) error {
	_, err := d.client.post(ctx, "/swipe", map[string]interface{}{
		"start":       encodeTarget(start),
		"end":         encodeTarget(end),
		"duration_ms": duration.Milliseconds(),
	})
	return err
}

// Wait implements core.Driver.
func (d *Driver) Wait(ctx context.Context, target core.Target, timeout time.Duration) error {
	// The agent blocks for up to timeout; allow the HTTP call a little longer.
	_, err := d.client.postWithin(ctx, timeout+d.client.Timeout(), "/wait", map[string]interface{}{
		"target":     encodeTarget(target),
		"timeout_ms": timeout.Milliseconds(),
	})
	return err
}

// Exists implements core.Driver. A null value means the target is absent.
func (d *Driver) Exists(ctx context.Context, target core.Target) (*core.Point, error) {
	value, err := d.client.post(ctx, "/exists", map[string]interface{}{
		"target": encodeTarget(target),
	})
	if err != nil {
		return nil, err
	}
	if !value.IsObject() {
		return nil, nil
	}
	return &core.Point{X: int(value.Get("x").Int()), Y: int(value.Get("y").Int())}, nil
}

// Snapshot implements core.Driver. The agent returns the PNG base64 encoded.
func (d *Driver) Snapshot(ctx context.Context, path string) (string, error) {
	value, err := d.client.get(ctx, "/snapshot")
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(value.String())
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Text implements core.Driver.
func (d *Driver) Text(ctx context.Context, value string) error {
	_, err := d.client.post(ctx, "/text", map[string]interface{}{"text": value})
	return err
}

// ScreenSize implements core.Driver. The size is cached after the first call.
func (d *Driver) ScreenSize(ctx context.Context) (int, int, error) {
	if d.screenW > 0 && d.screenH > 0 {
		return d.screenW, d.screenH, nil
	}
	value, err := d.client.get(ctx, "/screen_size")
	if err != nil {
		return 0, 0, err
	}
	d.screenW = int(value.Get("width").Int())
	d.screenH = int(value.Get("height").Int())
	if d.screenW <= 0 || d.screenH <= 0 {
		return 0, 0, fmt.Errorf("invalid screen size %dx%d", d.screenW, d.screenH)
	}
	logger.Debug("screen size: %dx%d", d.screenW, d.screenH)
	return d.screenW, d.screenH, nil
}

// RecognizeRegionText implements core.OCR.
func (d *Driver) RecognizeRegionText(ctx context.Context, region core.Region) (string, error) {
	value, err := d.client.post(ctx, "/ocr/text", map[string]interface{}{"region": encodeTarget(region)})
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// RecognizeRegionNumber implements core.OCR.
func (d *Driver) RecognizeRegionNumber(ctx context.Context, region core.Region) (int, error) {
	value, err := d.client.post(ctx, "/ocr/number", map[string]interface{}{"region": encodeTarget(region)})
	if err != nil {
		return 0, err
	}
	return int(value.Int()), nil
}

// encodeTarget renders a target for the wire. Template images readable
// locally are sent inline so the agent needs no shared filesystem.
func encodeTarget(target core.Target) map[string]interface{} {
	switch t := target.(type) {
	case core.ImageTarget:
		m := map[string]interface{}{
			"kind":      string(core.TargetImage),
			"path":      t.Path,
			"threshold": t.Threshold,
		}
		if data, err := os.ReadFile(t.Path); err == nil {
			m["image"] = base64.StdEncoding.EncodeToString(data)
		}
		return m
	case core.Point:
		return map[string]interface{}{"kind": string(core.TargetPoint), "x": t.X, "y": t.Y}
	case core.Region:
		return map[string]interface{}{"kind": string(core.TargetRegion), "x1": t.X1, "y1": t.Y1, "x2": t.X2, "y2": t.Y2}
	default:
		return map[string]interface{}{"kind": "unknown", "value": fmt.Sprint(target)}
	}
}

var (
	_ core.Driver = (*Driver)(nil)
	_ core.OCR    = (*Driver)(nil)
)
