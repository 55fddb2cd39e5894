package executor

import (
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// ProgressFunc receives top-level step events. stepIndex is 1-based and
// totalSteps is fixed for the run. It is called synchronously.
type ProgressFunc func(stepIndex, totalSteps int, name string, status core.StepStatus)

// notify delivers an event, recovering from a panicking callback.
func notify(fn ProgressFunc, idx, total int, name string, status core.StepStatus) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress callback panicked on step %d (%s): %v", idx, status, r)
		}
	}()
	fn(idx, total, name, status)
}

// MultiProgress fans events out to several callbacks.
func MultiProgress(fns ...ProgressFunc) ProgressFunc {
	return func(idx, total int, name string, status core.StepStatus) {
		for _, fn := range fns {
			notify(fn, idx, total, name, status)
		}
	}
}
