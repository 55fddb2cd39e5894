package executor

import (
	"context"
	"time"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// withStepRetry runs fn up to retry_times+1 times, sleeping retry_interval
// between attempts. The last attempt's error is returned.
func (e *Engine) withStepRetry(ctx context.Context, step flow.Step, fn func() error) error {
	retries, err := step.Int("retry_times", 0)
	if err != nil {
		return err
	}
	if retries < 0 {
		retries = 0
	}
	interval := e.runtime.RetryIntervalDuration()
	if step.Has("retry_interval") {
		secs, err := step.Float("retry_interval", 0)
		if err != nil {
			return err
		}
		interval = flow.Seconds(secs)
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == retries {
			break
		}
		logger.Warn("step '%s' attempt %d failed, retrying in %v (%d left): %v",
			step.Name(), attempt+1, interval, retries-attempt-1, lastErr)
		if err := e.sleep(ctx, interval); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// pollUntil calls check until it succeeds or the deadline passes, sleeping
// min(interval, remaining) between calls. A zero timeout means one call.
// Config errors end polling at once since retrying cannot fix them.
func (e *Engine) pollUntil(ctx context.Context, timeout, interval time.Duration, check func() error) error {
	deadline := time.Now().Add(timeout)
	for {
		err := check()
		if err == nil {
			return nil
		}
		if core.CategoryOf(err) == core.ErrCategoryConfig {
			return err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return err
		}
		wait := interval
		if wait <= 0 || wait > remaining {
			wait = remaining
		}
		logger.Debug("check failed, retrying in %v: %v", wait, err)
		if serr := e.sleep(ctx, wait); serr != nil {
			return err
		}
	}
}
