package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/driver/mock"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
)

func ocrStep(fields flow.Step) flow.Step {
	step := flow.Step{"type": "assert", "selector": "10,10,200,60", "selector_type": "region"}
	for k, v := range fields {
		step[k] = v
	}
	return step
}

func TestAssert_GroupedNumberEndToEnd(t *testing.T) {
	drv := mock.New(mock.Config{Number: 3000})
	e := newEngine(drv)

	doc, err := flow.Parse([]byte(`
steps:
  - type: assert
    name: balance
    assert_type: number
    selector: "10,10,200,60"
    selector_type: region
    expected: "3,000"
`), "balance.yaml")
	if err != nil {
		t.Fatal(err)
	}
	result, err := e.RunDocument(context.Background(), doc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Passed != 1 {
		t.Fatalf("expected assertion to pass, got %+v", result.Steps)
	}
	reads := drv.CallsOf("ocr_number")
	if len(reads) != 1 || reads[0].Target != (core.Region{X1: 10, Y1: 10, X2: 200, Y2: 60}) {
		t.Errorf("unexpected OCR reads %+v", reads)
	}
}

func TestAssert_OCR(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		number int
		step   flow.Step
		pass   bool
	}{
		{"text contains default", "Welcome back, alice", 0, flow.Step{"expected": "alice"}, true},
		{"text contains miss", "Welcome", 0, flow.Step{"expected": "alice"}, false},
		{"text exact", "OK", 0, flow.Step{"expected": "OK", "match_mode": "exact"}, true},
		{"text exact miss", "OK!", 0, flow.Step{"expected": "OK", "match_mode": "exact"}, false},
		{"text regex mode", "order 12345", 0, flow.Step{"expected": `order \d+`, "match_mode": "regex"}, true},
		{"regex type", "id: A-17", 0, flow.Step{"assert_type": "regex", "expected": `[A-Z]-\d+`}, true},
		{"regex type miss", "id: none", 0, flow.Step{"assert_type": "regex", "expected": `[A-Z]-\d+`}, false},
		{"number", "", 42, flow.Step{"assert_type": "number", "expected": 42}, true},
		{"number default zero", "", 0, flow.Step{"assert_type": "number"}, true},
		{"range inside", "", 50, flow.Step{"assert_type": "range", "min": 10, "max": "1,000"}, true},
		{"range below", "", 5, flow.Step{"assert_type": "range", "min": 10}, false},
		{"range above", "", 5000, flow.Step{"assert_type": "range", "max": "1,000"}, false},
		{"ocr selector wins", "hi", 0, flow.Step{"expected": "hi", "selector": "bad", "ocr_selector": "0,0,5,5"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(mock.New(mock.Config{Text: tt.text, Number: tt.number}))
			err := runOne(e, ocrStep(tt.step))
			if tt.pass && err != nil {
				t.Errorf("expected pass, got %v", err)
			}
			if !tt.pass && !core.IsAssertion(err) {
				t.Errorf("expected assertion failure, got %v", err)
			}
		})
	}
}

func TestAssert_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		step flow.Step
	}{
		{"unknown type", ocrStep(flow.Step{"assert_type": "color"})},
		{"region needs four values", ocrStep(flow.Step{"selector": "1,2,3"})},
		{"non region selector", ocrStep(flow.Step{"selector_type": "pos", "selector": "1,2"})},
		{"missing selector", flow.Step{"type": "assert", "expected": "x"}},
		{"bad number", ocrStep(flow.Step{"assert_type": "number", "expected": "many"})},
		{"range without bounds", ocrStep(flow.Step{"assert_type": "range"})},
		{"bad regex", ocrStep(flow.Step{"assert_type": "regex", "expected": "("})},
		{"empty regex", ocrStep(flow.Step{"assert_type": "regex"})},
		{"bad match mode", ocrStep(flow.Step{"match_mode": "fuzzy"})},
		{"missing expected image", flow.Step{"type": "assert", "assert_type": "image", "expected": "nope.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := mock.New(mock.Config{})
			e := newEngine(drv)
			tt.step["timeout"] = 30
			err := runOne(e, tt.step)
			if core.CategoryOf(err) != core.ErrCategoryConfig {
				t.Errorf("expected config error, got %v", err)
			}
			if n := len(drv.CallsOf("ocr_text")) + len(drv.CallsOf("ocr_number")); n != 0 {
				t.Errorf("no OCR reads expected, got %d", n)
			}
		})
	}
}

func TestAssert_NoOCR(t *testing.T) {
	e := New(Dependencies{Driver: mock.New(mock.Config{}), Sleep: noSleep})
	err := runOne(e, ocrStep(flow.Step{"expected": "x"}))
	if core.CategoryOf(err) != core.ErrCategoryConfig {
		t.Errorf("expected config error without OCR, got %v", err)
	}
}

func TestAssert_Exists(t *testing.T) {
	tests := []struct {
		name    string
		present bool
		want    interface{}
		pass    bool
	}{
		{"present expected", true, nil, true},
		{"absent expected present", false, nil, false},
		{"absent wanted", false, false, true},
		{"absent wanted string", false, "false", true},
		{"present not wanted", true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := mock.New(mock.Config{Present: func(core.Target) bool { return tt.present }})
			e := newEngine(drv)
			step := flow.Step{"type": "assert", "assert_type": "exists", "selector": "1,1", "selector_type": "pos"}
			if tt.want != nil {
				step["expected_exists"] = tt.want
			}
			err := runOne(e, step)
			if tt.pass != (err == nil) {
				t.Errorf("pass=%v, got %v", tt.pass, err)
			}
		})
	}
}

func TestAssert_Image(t *testing.T) {
	dir := imageDir(t, "home", "logo.png")
	var seen core.Target
	drv := mock.New(mock.Config{Present: func(target core.Target) bool {
		seen = target
		return true
	}})
	e := newEngine(drv, withImageDir(dir))

	err := runOne(e, flow.Step{
		"type": "assert", "assert_type": "image", "expected": "logo.png",
		"expected_image_scope": "home", "image_threshold": 0.85,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := core.ImageTarget{Path: filepath.Join(dir, "home", "logo.png"), Threshold: 0.85}
	if seen != want {
		t.Errorf("expected %v, got %v", want, seen)
	}
}

func TestAssert_PollsUntilPass(t *testing.T) {
	texts := []string{"loading", "loading", "done"}
	reads := 0
	drv := mock.New(mock.Config{TextFunc: func(core.Region) (string, error) {
		s := texts[reads]
		if reads < len(texts)-1 {
			reads++
		}
		return s, nil
	}})
	e := newEngine(drv)
	err := runOne(e, ocrStep(flow.Step{"expected": "done", "timeout": 60, "retry_interval": 1}))
	if err != nil {
		t.Fatalf("expected eventual pass, got %v", err)
	}
	if n := len(drv.CallsOf("ocr_text")); n != 3 {
		t.Errorf("expected 3 reads, got %d", n)
	}
}

func TestForeachAssert(t *testing.T) {
	tests := []struct {
		name  string
		reads []string
		step  flow.Step
		pass  bool
	}{
		{
			name:  "enough matches",
			reads: []string{"apple pie", "nothing", "banana"},
			step:  flow.Step{"expected_list": []interface{}{"apple", "banana"}, "max_loops": 3, "min_match": 2},
			pass:  true,
		},
		{
			name:  "too few matches",
			reads: []string{"x", "y", "apple"},
			step:  flow.Step{"expected_list": `["apple"]`, "max_loops": 3, "min_match": 2},
			pass:  false,
		},
		{
			name:  "exact mode",
			reads: []string{"apple pie"},
			step:  flow.Step{"expected_list": []interface{}{"apple"}, "max_loops": 1, "match_mode": "exact"},
			pass:  false,
		},
		{
			name:  "numbers",
			reads: nil,
			step:  flow.Step{"expected_list": []interface{}{"1,000", 7}, "max_loops": 2, "assert_type": "number", "min_match": 2},
			pass:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := 0
			drv := mock.New(mock.Config{
				TextFunc: func(core.Region) (string, error) {
					s := tt.reads[i%len(tt.reads)]
					i++
					return s, nil
				},
				NumberFunc: func(core.Region) (int, error) {
					i++
					if i%2 == 1 {
						return 1000, nil
					}
					return 7, nil
				},
			})
			e := newEngine(drv)

			step := flow.Step{
				"type": "foreach_assert", "click_selector": "5,5", "click_selector_type": "pos",
				"ocr_selector": "0,0,100,20",
			}
			for k, v := range tt.step {
				step[k] = v
			}
			err := runOne(e, step)
			if tt.pass && err != nil {
				t.Errorf("expected pass, got %v", err)
			}
			if !tt.pass && !core.IsAssertion(err) {
				t.Errorf("expected assertion failure, got %v", err)
			}
			loops, _ := step.Int("max_loops", 5)
			if n := len(drv.CallsOf("touch")); n != loops {
				t.Errorf("expected %d clicks, got %d", loops, n)
			}
		})
	}
}

func TestForeachAssert_ConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		step     flow.Step
		category core.ErrorCategory
	}{
		{"no click selector", flow.Step{"ocr_selector": "0,0,1,1", "expected_list": []interface{}{"a"}}, core.ErrCategoryResolution},
		{"bad expected list", flow.Step{"click_selector": "1,1", "click_selector_type": "pos", "ocr_selector": "0,0,1,1", "expected_list": 5}, core.ErrCategoryConfig},
		{"bad ocr region", flow.Step{"click_selector": "1,1", "click_selector_type": "pos", "ocr_selector": "0,0", "expected_list": []interface{}{"a"}}, core.ErrCategoryConfig},
		{"bad assert type", flow.Step{"assert_type": "image", "click_selector": "1,1", "click_selector_type": "pos", "ocr_selector": "0,0,1,1"}, core.ErrCategoryConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(mock.New(mock.Config{}))
			tt.step["type"] = "foreach_assert"
			if err := runOne(e, tt.step); core.CategoryOf(err) != tt.category {
				t.Errorf("expected %s error, got %v", tt.category, err)
			}
		})
	}
}
