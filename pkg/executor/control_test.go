package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/driver/mock"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

func setOutput(name, value string) map[string]interface{} {
	return map[string]interface{}{"type": "set_variable", "name": name, "value": value, "scope": "outputs"}
}

func tapAt(sel string) map[string]interface{} {
	return map[string]interface{}{"type": "click", "selector": sel, "selector_type": "pos"}
}

func TestIf_Branches(t *testing.T) {
	tests := []struct {
		name string
		step flow.Step
		want string
	}{
		{
			name: "operands true",
			step: flow.Step{"left": "{{score}}", "operator": ">", "right": 5},
			want: "then",
		},
		{
			name: "operands false",
			step: flow.Step{"left": "{{score}}", "operator": "<", "right": 5},
			want: "else",
		},
		{
			name: "default operator",
			step: flow.Step{"left": "{{score}}", "right": "7"},
			want: "then",
		},
		{
			name: "expression wins over operands",
			step: flow.Step{"expression": "score == 7", "left": "a", "right": "b"},
			want: "then",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(nil)
			step := tt.step
			step["type"] = "if"
			step["then_steps"] = []interface{}{setOutput("branch", "then")}
			step["else_steps"] = []interface{}{setOutput("branch", "else")}

			_, err := e.Run(context.Background(), []flow.Step{step},
				[]flow.Variable{{Name: "score", Value: 7}}, nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := outputs(e, "branch"); got != tt.want {
				t.Errorf("expected branch %s, got %v", tt.want, got)
			}
		})
	}
}

func TestIf_NoElse(t *testing.T) {
	e := newEngine(nil)
	err := runOne(e, flow.Step{"type": "if", "left": "a", "right": "b", "then_steps": []interface{}{setOutput("x", "1")}})
	if err != nil || outputs(e, "x") != nil {
		t.Errorf("expected nothing to run, got %v, %v", outputs(e, "x"), err)
	}
}

func TestLoop_Count(t *testing.T) {
	drv := mock.New(mock.Config{})
	e := newEngine(drv)
	err := runOne(e, flow.Step{"type": "loop", "times": "3", "steps": []interface{}{tapAt("1,1")}})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(drv.CallsOf("touch")); n != 3 {
		t.Errorf("expected 3 touches, got %d", n)
	}
}

func TestLoop_Foreach(t *testing.T) {
	tests := []struct {
		name  string
		items interface{}
	}{
		{"literal list", []interface{}{"a", "b"}},
		{"json string", `["a","b"]`},
		{"list variable", "{{letters}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := mock.New(mock.Config{})
			e := newEngine(drv)
			e.Store().Set("letters", []interface{}{"a", "b"}, vars.Global)

			err := runOne(e, flow.Step{
				"type": "loop", "mode": "foreach", "items": tt.items, "item_var": "letter",
				"steps": []interface{}{
					map[string]interface{}{"type": "input", "value": "{{letter}}"},
				},
			})
			if err != nil {
				t.Fatal(err)
			}
			texts := drv.CallsOf("text")
			if len(texts) != 2 || texts[0].Text != "a" || texts[1].Text != "b" {
				t.Errorf("unexpected text calls %+v", texts)
			}
		})
	}
}

func TestLoop_ForeachInvalidItems(t *testing.T) {
	e := newEngine(nil)
	err := runOne(e, flow.Step{"type": "loop", "mode": "foreach", "items": "not a list", "steps": []interface{}{}})
	if core.CategoryOf(err) != core.ErrCategoryConfig {
		t.Errorf("expected config error, got %v", err)
	}

	if err := runOne(e, flow.Step{"type": "loop", "mode": "foreach", "items": ""}); err != nil {
		t.Errorf("empty items should be a no-op, got %v", err)
	}
}

func TestLoop_ConditionReevaluated(t *testing.T) {
	e := newEngine(nil)
	steps := []flow.Step{{
		"type": "loop", "mode": "condition", "left": "{{n}}", "operator": "<", "right": 3, "max_loops": 10,
		"steps": []interface{}{
			map[string]interface{}{"type": "run_script", "script": "output.n = n + 1", "scope": "local"},
		},
	}}
	_, err := e.Run(context.Background(), steps, []flow.Variable{{Name: "n", Value: 0}}, map[string]interface{}{"stop_on_error": true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	n, _ := vars.ToInt(e.Store().Get("n"))
	if n != 3 {
		t.Errorf("expected n=3, got %v", e.Store().Get("n"))
	}
}

func TestLoop_ConditionMaxLoops(t *testing.T) {
	drv := mock.New(mock.Config{})
	e := newEngine(drv)
	err := runOne(e, flow.Step{
		"type": "loop", "mode": "condition", "expression": "true", "max_loops": 4,
		"steps": []interface{}{tapAt("1,1")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(drv.CallsOf("touch")); n != 4 {
		t.Errorf("expected 4 iterations, got %d", n)
	}
}

func TestLoop_InvalidMode(t *testing.T) {
	e := newEngine(nil)
	err := runOne(e, flow.Step{"type": "loop", "mode": "forever"})
	if core.CategoryOf(err) != core.ErrCategoryConfig {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestLoop_BodyFailureStops(t *testing.T) {
	drv := mock.New(mock.Config{FailOnCall: 2})
	e := newEngine(drv)
	err := runOne(e, flow.Step{"type": "loop", "times": 5, "steps": []interface{}{tapAt("1,1")}})
	if err == nil {
		t.Fatal("expected failure")
	}
	if n := len(drv.CallsOf("touch")); n != 2 {
		t.Errorf("expected loop to stop after 2 touches, got %d", n)
	}
}

func TestSequence(t *testing.T) {
	drv := mock.New(mock.Config{})
	e := newEngine(drv)
	err := runOne(e, flow.Step{"type": "sequence", "steps": []interface{}{tapAt("1,1"), tapAt("2,2")}})
	if err != nil {
		t.Fatal(err)
	}
	touches := drv.CallsOf("touch")
	if len(touches) != 2 || touches[1].Target != (core.Point{X: 2, Y: 2}) {
		t.Errorf("unexpected touches %+v", touches)
	}
}

func TestTry_CatchAndFinally(t *testing.T) {
	drv := mock.New(mock.Config{Number: 2})
	e := newEngine(drv)
	err := runOne(e, flow.Step{
		"type": "try",
		"try_steps": []interface{}{
			map[string]interface{}(failingNumberAssert),
			setOutput("after_failure", "ran"),
		},
		"catch_steps":   []interface{}{setOutput("caught", "{{err}}")},
		"finally_steps": []interface{}{setOutput("finally", "ran")},
		"error_var":     "err",
	})
	if err != nil {
		t.Fatalf("caught error should not propagate: %v", err)
	}
	if outputs(e, "after_failure") != nil {
		t.Error("try block should stop at the first failure")
	}
	if caught, _ := outputs(e, "caught").(string); caught == "" {
		t.Error("error text not stored")
	}
	if outputs(e, "finally") != "ran" {
		t.Error("finally did not run")
	}
}

func TestTry_NoCatchSwallows(t *testing.T) {
	e := newEngine(mock.New(mock.Config{Number: 2}))
	err := runOne(e, flow.Step{"type": "try", "try_steps": []interface{}{map[string]interface{}(failingNumberAssert)}})
	if err != nil {
		t.Errorf("expected swallowed error, got %v", err)
	}
	if v, _ := e.Store().GetScoped("error", vars.Local); v == nil {
		t.Error("expected default error_var to be set")
	}
}

func TestTry_CatchFailurePropagates(t *testing.T) {
	drv := mock.New(mock.Config{Number: 2})
	e := newEngine(drv)
	err := runOne(e, flow.Step{
		"type":          "try",
		"try_steps":     []interface{}{map[string]interface{}(failingNumberAssert)},
		"catch_steps":   []interface{}{map[string]interface{}(failingNumberAssert)},
		"finally_steps": []interface{}{setOutput("finally", "ran")},
	})
	if !core.IsAssertion(err) {
		t.Errorf("expected catch error, got %v", err)
	}
	if outputs(e, "finally") != "ran" {
		t.Error("finally did not run")
	}
}

func TestTry_FinallyErrorWins(t *testing.T) {
	e := newEngine(nil)
	err := runOne(e, flow.Step{
		"type":          "try",
		"try_steps":     []interface{}{setOutput("ok", "1")},
		"finally_steps": []interface{}{map[string]interface{}{"type": "loop", "mode": "bogus"}},
	})
	if core.CategoryOf(err) != core.ErrCategoryConfig {
		t.Errorf("expected finally error, got %v", err)
	}
}

func TestSequence_CancelledContext(t *testing.T) {
	e := newEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.executeStep(ctx, flow.Step{"type": "sequence", "steps": []interface{}{setOutput("x", "1")}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}
