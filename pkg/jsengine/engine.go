// Package jsengine runs JavaScript snippets for run_script steps.
package jsengine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/apiclient"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// Engine wraps a goja runtime. Flow variables are exposed as globals and
// values assigned to output.<name> are handed back to the flow.
type Engine struct {
	runtime *goja.Runtime
	http    *apiclient.Client
	output  map[string]interface{}
	mu      sync.Mutex
}

// New creates a new JS engine instance. client backs the http module and may
// be nil, in which case a default client is used.
func New(client *apiclient.Client) *Engine {
	if client == nil {
		client = apiclient.New()
	}
	e := &Engine{
		runtime: goja.New(),
		http:    client,
		output:  make(map[string]interface{}),
	}
	e.setupBuiltins()
	return e
}

func (e *Engine) setupBuiltins() {
	e.setupConsole()
	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("http", e.httpModule())
	e.runtime.Set("output", e.output)
}

// setupConsole routes console.log/warn/error to the run log.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			log("[script] %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	_ = console.Set("log", makeConsoleFunc(logger.Info))
	_ = console.Set("warn", makeConsoleFunc(logger.Warn))
	_ = console.Set("error", makeConsoleFunc(logger.Error))
	e.runtime.Set("console", console)
}

// jsonFunc returns the json() helper which parses a JSON string.
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}
		parse, ok := goja.AssertFunction(e.runtime.Get("JSON").ToObject(e.runtime).Get("parse"))
		if !ok {
			panic(e.runtime.NewTypeError("JSON.parse unavailable"))
		}
		result, err := parse(goja.Undefined(), call.Arguments[0])
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return result
	}
}

// SetVariable sets a variable accessible in JS as a global.
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables.
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// GetOutput returns a copy of the output object.
func (e *Engine) GetOutput() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputLocked()
}

func (e *Engine) outputLocked() map[string]interface{} {
	source := e.output
	if v := e.runtime.Get("output"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		if m, ok := v.Export().(map[string]interface{}); ok {
			source = m
		}
	}
	result := make(map[string]interface{}, len(source))
	for k, v := range source {
		result[k] = v
	}
	return result
}

// Run executes script with variables bound as globals and returns what the
// script assigned to output. The output object starts empty on every call.
// Cancelling ctx interrupts the script.
func (e *Engine) Run(ctx context.Context, script string, variables map[string]interface{}) (map[string]interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.output = make(map[string]interface{})
	e.runtime.Set("output", e.output)
	for k, v := range variables {
		e.runtime.Set(k, v)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.runtime.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	_, err := e.runtime.RunString(script)
	e.runtime.ClearInterrupt()
	if err != nil {
		return nil, fmt.Errorf("JS runtime error: %w", err)
	}
	return e.outputLocked(), nil
}

// Eval evaluates a JavaScript expression and returns the exported result.
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}
	return result.Export(), nil
}
