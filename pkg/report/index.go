package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/executor"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// progressDebounce bounds how often step events rewrite report.json.
const progressDebounce = 100 * time.Millisecond

// IndexWriter provides thread-safe updates to the report index.
// Pool workers update it concurrently through Hooks.
type IndexWriter struct {
	mu        sync.Mutex
	outputDir string
	path      string
	index     *Index
	timer     *time.Timer
}

// NewIndexWriter creates the report directory and writes the skeleton.
func NewIndexWriter(outputDir string, index *Index) (*IndexWriter, error) {
	if err := ensureDir(filepath.Join(outputDir, "assets")); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	w := &IndexWriter{
		outputDir: outputDir,
		path:      filepath.Join(outputDir, IndexFile),
		index:     index,
	}
	if err := atomicWriteJSON(w.path, index); err != nil {
		return nil, fmt.Errorf("write report skeleton: %w", err)
	}
	return w, nil
}

// Hooks returns pool hooks that feed this writer.
func (w *IndexWriter) Hooks() executor.PoolHooks {
	return executor.PoolHooks{
		FlowStarted:  w.FlowStarted,
		StepProgress: w.StepProgress,
		FlowFinished: w.FlowFinished,
	}
}

// Start marks the run as started.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.index.Status = StatusRunning
	w.index.StartTime = time.Now()
	w.flushLocked()
}

// FlowStarted marks a flow as running on worker.
func (w *IndexWriter) FlowStarted(flowIdx int, worker string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f := w.flow(flowIdx)
	if f == nil {
		return
	}
	now := time.Now()
	f.Status = StatusRunning
	f.Worker = worker
	f.StartTime = &now
	f.UpdateSeq++
	w.flushLocked()
}

// StepProgress returns a progress callback for the flow at flowIdx. Step
// events are debounced.
func (w *IndexWriter) StepProgress(flowIdx int) executor.ProgressFunc {
	return func(stepIdx, _ int, _ string, status core.StepStatus) {
		w.mu.Lock()
		defer w.mu.Unlock()

		f := w.flow(flowIdx)
		if f == nil || stepIdx < 1 || stepIdx > len(f.Steps) {
			return
		}
		f.Steps[stepIdx-1].Status = fromStepStatus(status)
		f.StepSummary = summarizeSteps(f.Steps)
		f.UpdateSeq++

		if w.timer == nil {
			w.timer = time.AfterFunc(progressDebounce, w.flush)
		}
	}
}

// FlowFinished records the final outcome of a flow and flushes immediately.
func (w *IndexWriter) FlowFinished(res executor.FlowResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f := w.flow(res.Index)
	if f == nil {
		return
	}

	now := time.Now()
	f.EndTime = &now
	if f.StartTime == nil {
		f.StartTime = &now
	}
	d := res.Duration.Milliseconds()
	f.Duration = &d
	f.Status = StatusFailed
	if res.Passed() {
		f.Status = StatusPassed
	}

	if res.Result != nil {
		for _, o := range res.Result.Steps {
			if o.Index < 1 || o.Index > len(f.Steps) {
				continue
			}
			s := &f.Steps[o.Index-1]
			ms := o.Duration.Milliseconds()
			s.Status = fromStepStatus(o.Status)
			s.Duration = &ms
			s.Error = o.Error
			s.Category = o.Category
			s.Screenshot = w.relative(o.Screenshot)
		}
		f.Outputs = res.Result.Outputs
	}
	f.StepSummary = summarizeSteps(f.Steps)

	if msg := flowError(res); msg != "" {
		f.Error = &msg
	}
	f.UpdateSeq++
	w.flushLocked()
}

// End marks the run as complete.
func (w *IndexWriter) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = w.computeRunStatus()
	w.flushLocked()
}

// Close stops the debounce timer and flushes pending updates.
func (w *IndexWriter) Close() {
	w.flush()
}

// GetIndex returns the current index (for reading).
func (w *IndexWriter) GetIndex() *Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.index
}

func (w *IndexWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

// flushLocked writes the index while holding the lock.
func (w *IndexWriter) flushLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = w.computeSummary()

	if err := atomicWriteJSON(w.path, w.index); err != nil {
		logger.Warn("failed to write %s: %v", w.path, err)
	}
}

func (w *IndexWriter) flow(idx int) *FlowEntry {
	if idx < 0 || idx >= len(w.index.Flows) {
		logger.Warn("report: flow index %d out of range", idx)
		return nil
	}
	return &w.index.Flows[idx]
}

// relative makes an artifact path relative to the report directory when it
// lies inside it.
func (w *IndexWriter) relative(path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(w.outputDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// computeSummary calculates summary from flow statuses.
func (w *IndexWriter) computeSummary() Summary {
	var s Summary
	for _, f := range w.index.Flows {
		s.Total++
		switch f.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusRunning:
			s.Running++
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

// computeRunStatus determines overall run status from flows.
func (w *IndexWriter) computeRunStatus() Status {
	hasFailure := false
	allComplete := true

	for _, f := range w.index.Flows {
		if f.Status == StatusFailed {
			hasFailure = true
		}
		if !f.Status.IsTerminal() {
			allComplete = false
		}
	}

	if !allComplete {
		return StatusRunning
	}
	if hasFailure {
		return StatusFailed
	}
	return StatusPassed
}

func summarizeSteps(steps []StepEntry) StepSummary {
	s := StepSummary{Total: len(steps)}
	for i, st := range steps {
		switch st.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusRunning:
			s.Running++
			idx := i + 1
			s.Current = &idx
		default:
			s.Pending++
		}
	}
	return s
}

func fromStepStatus(s core.StepStatus) Status {
	switch s {
	case core.StatusRunning:
		return StatusRunning
	case core.StatusPassed:
		return StatusPassed
	case core.StatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

func flowError(res executor.FlowResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	if res.Result == nil {
		return "flow did not run"
	}
	if res.Result.Failed > 0 {
		return fmt.Sprintf("%d of %d steps failed", res.Result.Failed, res.Result.Total)
	}
	return ""
}
