// Package report writes a JSON run report that is updated live while flows
// execute.
//
// Layout:
//   - report.json: the index, rewritten atomically on every flush
//   - assets/flow-XXX/: per-flow failure screenshots
//   - allure-results/: optional Allure export generated from report.json
//
// Consumers poll report.json and use updateSeq to detect changes.
package report

import "time"

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status of a run, flow or step.
type Status string

// Status values.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// Index is the report.json document.
type Index struct {
	Version     string      `json:"version"`
	RunID       string      `json:"runId"`
	UpdateSeq   uint64      `json:"updateSeq"`
	Status      Status      `json:"status"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	LastUpdated time.Time   `json:"lastUpdated"`
	Driver      DriverInfo  `json:"driver"`
	Runner      RunnerInfo  `json:"runner"`
	Summary     Summary     `json:"summary"`
	Flows       []FlowEntry `json:"flows"`
}

// DriverInfo describes the device backend of the run.
type DriverInfo struct {
	Kind      string `json:"kind"` // mock, remote
	ServerURL string `json:"serverUrl,omitempty"`
	Workers   int    `json:"workers"`
}

// RunnerInfo identifies the tool that produced the report.
type RunnerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Summary contains aggregated flow counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// FlowEntry is the index entry for one flow document.
type FlowEntry struct {
	Index       int                    `json:"index"`
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	SourceFile  string                 `json:"sourceFile"`
	AssetsDir   string                 `json:"assetsDir"`
	Worker      string                 `json:"worker,omitempty"`
	Status      Status                 `json:"status"`
	UpdateSeq   uint64                 `json:"updateSeq"`
	StartTime   *time.Time             `json:"startTime,omitempty"`
	EndTime     *time.Time             `json:"endTime,omitempty"`
	Duration    *int64                 `json:"duration,omitempty"` // milliseconds
	StepSummary StepSummary            `json:"stepSummary"`
	Steps       []StepEntry            `json:"steps"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Error       *string                `json:"error,omitempty"`
}

// StepSummary contains top-level step counts for a flow.
type StepSummary struct {
	Total   int  `json:"total"`
	Passed  int  `json:"passed"`
	Failed  int  `json:"failed"`
	Running int  `json:"running"`
	Pending int  `json:"pending"`
	Current *int `json:"current,omitempty"` // 1-based index of the running step
}

// StepEntry is one top-level step of a flow.
type StepEntry struct {
	Index      int    `json:"index"` // 1-based
	Name       string `json:"name"`
	Type       string `json:"type"`
	Status     Status `json:"status"`
	Duration   *int64 `json:"duration,omitempty"` // milliseconds
	Error      string `json:"error,omitempty"`
	Category   string `json:"category,omitempty"`
	Screenshot string `json:"screenshot,omitempty"` // relative to the report dir
}
