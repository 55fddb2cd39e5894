package mock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
)

func TestDriver_RecordsCalls(t *testing.T) {
	d := New(Config{})
	ctx := context.Background()

	p := core.Point{X: 1, Y: 2}
	if err := d.Touch(ctx, p, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := d.Text(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := d.Swipe(ctx, p, core.Point{X: 3, Y: 4}, 0); err != nil {
		t.Fatal(err)
	}

	calls := d.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	if calls[0].Method != "touch" || calls[0].Target != p || calls[0].Duration != time.Second {
		t.Errorf("unexpected touch call %+v", calls[0])
	}
	if got := d.CallsOf("text"); len(got) != 1 || got[0].Text != "hello" {
		t.Errorf("unexpected text calls %+v", got)
	}

	d.Reset()
	if len(d.Calls()) != 0 {
		t.Error("Reset() did not clear calls")
	}
}

func TestDriver_FailOnCall(t *testing.T) {
	d := New(Config{FailOnCall: 2})
	ctx := context.Background()
	target := core.Point{X: 1, Y: 1}

	if err := d.Touch(ctx, target, 0); err != nil {
		t.Errorf("call 1 should pass: %v", err)
	}
	if err := d.Touch(ctx, target, 0); err == nil {
		t.Error("call 2 should fail")
	}
	if err := d.Touch(ctx, target, 0); err != nil {
		t.Errorf("call 3 should pass: %v", err)
	}
}

func TestDriver_ExistsAndWait(t *testing.T) {
	absent := core.ImageTarget{Path: "missing.png"}
	d := New(Config{Present: func(t core.Target) bool { return t != absent }})
	ctx := context.Background()

	pos, err := d.Exists(ctx, core.Region{X1: 0, Y1: 0, X2: 10, Y2: 20})
	if err != nil || pos == nil || *pos != (core.Point{X: 5, Y: 10}) {
		t.Errorf("Exists(region) = %v, %v", pos, err)
	}

	pos, err = d.Exists(ctx, absent)
	if err != nil || pos != nil {
		t.Errorf("Exists(absent) = %v, %v", pos, err)
	}

	if err := d.Wait(ctx, absent, time.Second); core.CategoryOf(err) != core.ErrCategoryTimeout {
		t.Errorf("Wait(absent) error = %v, want timeout", err)
	}
}

func TestDriver_OCR(t *testing.T) {
	d := New(Config{Text: "fixed", NumberFunc: func(core.Region) (int, error) { return 42, nil }})
	ctx := context.Background()

	if s, _ := d.RecognizeRegionText(ctx, core.Region{}); s != "fixed" {
		t.Errorf("text = %q", s)
	}
	if n, _ := d.RecognizeRegionNumber(ctx, core.Region{}); n != 42 {
		t.Errorf("number = %d", n)
	}
}

func TestDriver_SnapshotAndScreenSize(t *testing.T) {
	d := New(Config{})
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shot.png")

	saved, err := d.Snapshot(ctx, path)
	if err != nil || saved != path {
		t.Fatalf("Snapshot() = %q, %v", saved, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}

	w, h, err := d.ScreenSize(ctx)
	if err != nil || w != 1080 || h != 2400 {
		t.Errorf("ScreenSize() = %d, %d, %v", w, h, err)
	}
}
