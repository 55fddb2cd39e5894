package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// Worker is one device slot of a Pool. Every flow gets a fresh Engine built
// from Deps, so flows never share a variable store. When Deps.ScreenshotDir
// is set, failure screenshots go to a FlowID subdirectory of it.
type Worker struct {
	ID      int
	Name    string
	Deps    Dependencies
	Cleanup func()
}

// FlowResult is the outcome of one document run by a Pool.
type FlowResult struct {
	Index    int
	Name     string
	Source   string
	Worker   string
	Result   *Result
	Err      error
	Duration time.Duration
}

// Passed reports whether the flow completed without a failed step.
func (r FlowResult) Passed() bool {
	return r.Err == nil && r.Result != nil && r.Result.Failed == 0
}

// RunResult aggregates every flow of a Pool run.
type RunResult struct {
	Total    int
	Passed   int
	Failed   int
	Duration time.Duration
	Flows    []FlowResult
}

// Success reports whether every flow passed.
func (r *RunResult) Success() bool {
	return r.Failed == 0
}

// PoolHooks observe flow lifecycle events. Every field is optional. Hooks
// are called from worker goroutines and must be safe for concurrent use.
type PoolHooks struct {
	FlowStarted  func(flowIdx int, worker string)
	StepProgress func(flowIdx int) ProgressFunc
	FlowFinished func(res FlowResult)
}

// workItem is a document and its position in the input list.
type workItem struct {
	doc   *flow.Document
	index int
}

// Pool runs documents across workers. All workers pull from one queue until
// it is drained.
type Pool struct {
	workers []Worker
	hooks   PoolHooks
}

// NewPool creates a pool over workers.
func NewPool(workers []Worker, hooks PoolHooks) *Pool {
	return &Pool{workers: workers, hooks: hooks}
}

// Run executes docs and returns one FlowResult per document in input order.
// Once ctx is cancelled the remaining documents are recorded with ctx.Err().
func (p *Pool) Run(ctx context.Context, docs []*flow.Document) (*RunResult, error) {
	if len(p.workers) == 0 {
		return nil, fmt.Errorf("no workers available")
	}

	start := time.Now()

	queue := make(chan workItem, len(docs))
	for i, d := range docs {
		queue <- workItem{doc: d, index: i}
	}
	close(queue)

	results := make([]FlowResult, len(docs))
	var wg sync.WaitGroup

	for i := range p.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			if w.Cleanup != nil {
				defer w.Cleanup()
			}

			for item := range queue {
				// Each index is written by exactly one worker.
				results[item.index] = p.runOne(ctx, w, item)
			}
		}(p.workers[i])
	}

	wg.Wait()
	return buildRunResult(results, time.Since(start)), nil
}

// FlowID is the stable identifier of the flow at index idx.
func FlowID(idx int) string {
	return fmt.Sprintf("flow-%03d", idx)
}

func (p *Pool) runOne(ctx context.Context, w Worker, item workItem) FlowResult {
	fr := FlowResult{
		Index:  item.index,
		Name:   item.doc.DisplayName(),
		Source: item.doc.SourcePath,
		Worker: w.Name,
	}

	if err := ctx.Err(); err != nil {
		fr.Err = err
		p.finished(fr)
		return fr
	}

	if p.hooks.FlowStarted != nil {
		p.hooks.FlowStarted(item.index, w.Name)
	}
	var progress ProgressFunc
	if p.hooks.StepProgress != nil {
		progress = p.hooks.StepProgress(item.index)
	}

	deps := w.Deps
	if deps.ScreenshotDir != "" {
		deps.ScreenshotDir = filepath.Join(deps.ScreenshotDir, FlowID(item.index))
	}
	engine := New(deps)

	logger.Info("[%s] %s (%s) started", w.Name, FlowID(item.index), fr.Name)
	started := time.Now()
	fr.Result, fr.Err = engine.RunDocument(ctx, item.doc, progress)
	fr.Duration = time.Since(started)

	if fr.Passed() {
		logger.Info("[%s] flow %s passed in %v", w.Name, fr.Name, fr.Duration)
	} else {
		logger.Warn("[%s] flow %s failed in %v: %v", w.Name, fr.Name, fr.Duration, fr.Err)
	}
	p.finished(fr)
	return fr
}

func (p *Pool) finished(fr FlowResult) {
	if p.hooks.FlowFinished != nil {
		p.hooks.FlowFinished(fr)
	}
}

// buildRunResult aggregates flow results. Duration is wall clock time, not
// the sum of flow durations.
func buildRunResult(flows []FlowResult, wallClock time.Duration) *RunResult {
	result := &RunResult{
		Total:    len(flows),
		Flows:    flows,
		Duration: wallClock,
	}
	for _, fr := range flows {
		if fr.Passed() {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	return result
}
