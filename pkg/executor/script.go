package executor

import (
	"context"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/jsengine"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

// actionRunScript runs JavaScript with every variable visible as a global.
// Values the script assigns to output.<name> are stored in scope (outputs by
// default).
func (e *Engine) actionRunScript(ctx context.Context, step flow.Step) error {
	script := step.String("script", "")
	if script == "" {
		return core.ErrMissingRequired.WithMessagef("step '%s': run_script requires script", step.Name())
	}
	if e.scripts == nil {
		e.scripts = jsengine.New(e.http)
	}

	out, err := e.scripts.Run(ctx, script, e.store.Merged())
	if err != nil {
		return err
	}

	scope := vars.ParseScope(step.String("scope", string(vars.Outputs)))
	for k, v := range out {
		e.store.Set(k, v, scope)
	}
	logger.Info("script '%s' produced %d output(s) into %s", step.Name(), len(out), scope)
	return nil
}
