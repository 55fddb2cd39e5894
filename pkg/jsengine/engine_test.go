package jsengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	e := New(nil)
	if e == nil {
		t.Fatal("New() returned nil")
	}
	if e.runtime == nil || e.http == nil {
		t.Error("engine not fully initialised")
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   interface{}
	}{
		{"number", "1 + 2", int64(3)},
		{"string", "'hello' + ' world'", "hello world"},
		{"boolean", "true && false", false},
		{"template literal", "`a${1+1}b`", "a2b"},
		{"arrow", "((x) => x * 2)(21)", int64(42)},
	}

	e := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Eval(tt.script)
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEvalError(t *testing.T) {
	if _, err := New(nil).Eval("undefined_fn()"); err == nil {
		t.Error("Eval() should fail on a ReferenceError")
	}
}

func TestRun_VariablesAndOutput(t *testing.T) {
	e := New(nil)
	out, err := e.Run(context.Background(), `
		output.total = price * qty;
		output.label = user + "!";
	`, map[string]interface{}{"price": 3, "qty": 4, "user": "alice"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out["total"] != int64(12) {
		t.Errorf("total = %v (%T), want 12", out["total"], out["total"])
	}
	if out["label"] != "alice!" {
		t.Errorf("label = %v", out["label"])
	}
}

func TestRun_OutputResetBetweenRuns(t *testing.T) {
	e := New(nil)
	if _, err := e.Run(context.Background(), "output.first = 1", nil); err != nil {
		t.Fatal(err)
	}
	out, err := e.Run(context.Background(), "output.second = 2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out["first"]; ok {
		t.Error("output from the previous run leaked")
	}
	if out["second"] != int64(2) {
		t.Errorf("second = %v", out["second"])
	}
}

func TestRun_ScriptError(t *testing.T) {
	_, err := New(nil).Run(context.Background(), "throw new Error('boom')", nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Run() error = %v, want boom", err)
	}
}

func TestRun_ContextCancelInterrupts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(nil).Run(ctx, "while (true) {}", nil)
	if err == nil {
		t.Fatal("Run() should be interrupted")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("interrupt took too long")
	}
}

func TestSetVariable(t *testing.T) {
	e := New(nil)
	e.SetVariables(map[string]interface{}{"a": 1, "b": "x"})
	got, err := e.Eval("a + b")
	if err != nil {
		t.Fatal(err)
	}
	if got != "1x" {
		t.Errorf("a + b = %v", got)
	}
}

func TestConsoleLog(t *testing.T) {
	e := New(nil)
	if _, err := e.Eval(`console.log("hi", 1); console.warn("w"); console.error("e")`); err != nil {
		t.Errorf("console calls failed: %v", err)
	}
}

func TestJSON(t *testing.T) {
	e := New(nil)
	got, err := e.Eval(`json('{"a":{"b":[1,2,3]}}').a.b.length`)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(3) {
		t.Errorf("length = %v", got)
	}

	if _, err := e.Eval(`json('{broken')`); err == nil {
		t.Error("json() should reject invalid input")
	}
}

func TestHTTPModule(t *testing.T) {
	var gotMethod, gotHeader string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 9}`))
	}))
	defer server.Close()

	e := New(nil)
	out, err := e.Run(context.Background(), `
		var r = http.post(base + "/items", {headers: {"X-Token": "t"}, body: {name: "n"}});
		output.status = r.status;
		output.ok = r.ok;
		output.id = r.body.id;
	`, map[string]interface{}{"base": server.URL})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if gotMethod != http.MethodPost || gotHeader != "t" || gotBody["name"] != "n" {
		t.Errorf("server saw method=%s header=%s body=%v", gotMethod, gotHeader, gotBody)
	}
	if out["status"] != int64(200) || out["ok"] != true {
		t.Errorf("status=%v ok=%v", out["status"], out["ok"])
	}
	if fmt.Sprint(out["id"]) != "9" {
		t.Errorf("id = %v (%T)", out["id"], out["id"])
	}
}

func TestHTTPModule_MissingURL(t *testing.T) {
	if _, err := New(nil).Eval("http.get()"); err == nil {
		t.Error("http.get() without url should throw")
	}
}
