package executor

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

// expressionEnv exposes every variable by name (local shadows global shadows
// outputs) plus the global, local and outputs scopes as maps.
func (e *Engine) expressionEnv() map[string]interface{} {
	env := e.store.Merged()
	env["global"] = e.store.Snapshot(vars.Global)
	env["local"] = e.store.Snapshot(vars.Local)
	env["outputs"] = e.store.Snapshot(vars.Outputs)
	return env
}

// evalExpression compiles and runs an expr-lang expression against the
// current variables and coerces the result to a boolean.
func (e *Engine) evalExpression(expression string) (bool, error) {
	env := e.expressionEnv()
	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return false, core.ErrInvalidConfig.
			WithMessage(fmt.Sprintf("invalid expression %q: %v", expression, err)).
			WithCause(err)
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("expression %q failed: %w", expression, err)
	}
	return vars.Truthy(out), nil
}
