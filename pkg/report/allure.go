package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// AllureDir is the Allure results directory inside a report directory.
const AllureDir = "allure-results"

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	Parameters    []AllureParameter   `json:"parameters,omitempty"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureParameter is a name/value pair shown with a result.
type AllureParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// AllureCategory groups failures by trace pattern.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	TraceRegex      string   `json:"traceRegex"`
}

// AllureExecutor identifies the producer of the results.
type AllureExecutor struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	BuildName  string `json:"buildName"`
	ReportName string `json:"reportName"`
}

// GenerateAllure generates Allure-compatible result files in
// <reportDir>/allure-results/ from report.json.
func GenerateAllure(reportDir string) error {
	index, err := ReadIndex(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	allureDir := filepath.Join(reportDir, AllureDir)
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	for i := range index.Flows {
		entry := &index.Flows[i]
		result := buildAllureResult(entry, index)
		copyAllureAttachments(reportDir, allureDir, entry)

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal allure result for %s: %w", entry.ID, err)
		}
		resultPath := filepath.Join(allureDir, result.UUID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			return fmt.Errorf("write allure result %s: %w", entry.ID, err)
		}
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}
	if err := writeAllureEnvironment(allureDir, index); err != nil {
		return err
	}
	return writeAllureExecutor(allureDir, index)
}

func buildAllureResult(entry *FlowEntry, index *Index) AllureResult {
	startMs, stopMs := allureTimes(entry)

	labels := []AllureLabel{
		{Name: "suite", Value: entry.Name},
		{Name: "parentSuite", Value: filepath.Base(entry.SourceFile)},
		{Name: "framework", Value: "uiflow"},
		{Name: "severity", Value: "normal"},
	}
	if entry.Worker != "" {
		labels = append(labels, AllureLabel{Name: "thread", Value: entry.Worker})
	}
	if index.Driver.Kind != "" {
		labels = append(labels, AllureLabel{Name: "host", Value: index.Driver.Kind})
	}

	var details AllureStatusDetails
	if entry.Error != nil {
		details.Message = *entry.Error
	}

	steps := make([]AllureStep, 0, len(entry.Steps))
	var attachments []AllureAttachment
	cursor := startMs
	for _, s := range entry.Steps {
		step := buildAllureStep(entry, s, cursor)
		cursor = step.Stop
		steps = append(steps, step)
		attachments = append(attachments, step.Attachments...)
		if s.Status == StatusFailed && details.Trace == "" {
			details.Trace = step.StatusDetails.Trace
		}
	}

	var params []AllureParameter
	for _, k := range sortedKeys(entry.Outputs) {
		params = append(params, AllureParameter{Name: k, Value: fmt.Sprint(entry.Outputs[k])})
	}

	return AllureResult{
		UUID:          uuid.NewString(),
		HistoryID:     fnv32aHash(entry.Name + ":" + entry.SourceFile),
		FullName:      entry.SourceFile + "#" + entry.Name,
		Name:          entry.Name,
		Status:        mapAllureStatus(entry.Status),
		Stage:         "finished",
		Start:         startMs,
		Stop:          stopMs,
		Labels:        labels,
		Parameters:    params,
		StatusDetails: details,
		Steps:         steps,
		Attachments:   attachments,
	}
}

// buildAllureStep converts a step entry starting at start. Step start times
// are not recorded, so steps are laid out back to back from the flow start.
func buildAllureStep(entry *FlowEntry, s StepEntry, start int64) AllureStep {
	name := s.Type
	if s.Name != "" && s.Name != s.Type {
		name = s.Type + ": " + s.Name
	}

	stop := start
	if s.Duration != nil {
		stop += *s.Duration
	}

	step := AllureStep{
		Name:        name,
		Status:      mapAllureStatus(s.Status),
		Stage:       "finished",
		Start:       start,
		Stop:        stop,
		Attachments: []AllureAttachment{},
	}
	if s.Error != "" {
		step.StatusDetails = AllureStatusDetails{
			Message: s.Error,
			Trace:   fmt.Sprintf("category=%s\nstep=%d %s", s.Category, s.Index, s.Name),
		}
	}
	if s.Screenshot != "" {
		step.Attachments = append(step.Attachments, AllureAttachment{
			Name:   "Failure screenshot",
			Source: attachmentName(entry, s.Screenshot),
			Type:   "image/png",
		})
	}
	return step
}

func allureTimes(entry *FlowEntry) (int64, int64) {
	var startMs, stopMs int64
	if entry.StartTime != nil {
		startMs = entry.StartTime.UnixMilli()
	}
	if entry.EndTime != nil {
		stopMs = entry.EndTime.UnixMilli()
	} else if entry.StartTime != nil && entry.Duration != nil {
		stopMs = startMs + *entry.Duration
	}
	return startMs, stopMs
}

// attachmentName flattens a screenshot path into a unique file name inside
// allure-results.
func attachmentName(entry *FlowEntry, path string) string {
	return entry.ID + "-" + filepath.Base(path)
}

// copyAllureAttachments copies failure screenshots of a flow into
// allure-results.
func copyAllureAttachments(reportDir, allureDir string, entry *FlowEntry) {
	for _, s := range entry.Steps {
		if s.Screenshot == "" {
			continue
		}
		src := s.Screenshot
		if !filepath.IsAbs(src) {
			src = filepath.Join(reportDir, src)
		}
		copyFile(src, filepath.Join(allureDir, attachmentName(entry, s.Screenshot)))
	}
}

// copyFile copies src to dst. A missing source is ignored.
func copyFile(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		logger.Warn("failed to create %s: %v", dst, err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("failed to copy %s to %s: %v", src, dst, err)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mapAllureStatus(s Status) string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusPending:
		return "skipped"
	default:
		return "unknown"
	}
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Assertion Failed", MatchedStatuses: []string{"failed"}, TraceRegex: "(?s).*category=assertion.*"},
		{Name: "Element Not Resolved", MatchedStatuses: []string{"failed"}, TraceRegex: "(?s).*category=resolution.*"},
		{Name: "Timeout", MatchedStatuses: []string{"failed"}, TraceRegex: "(?s).*category=timeout.*"},
		{Name: "Connection Error", MatchedStatuses: []string{"failed"}, TraceRegex: "(?s).*category=connection.*"},
		{Name: "Invalid Step Config", MatchedStatuses: []string{"failed"}, TraceRegex: "(?s).*category=config.*"},
		{Name: "Component Error", MatchedStatuses: []string{"failed"}, TraceRegex: "(?s).*category=component.*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	if err := os.WriteFile(filepath.Join(allureDir, "categories.json"), data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

func writeAllureEnvironment(allureDir string, index *Index) error {
	var b strings.Builder
	b.WriteString("framework=uiflow\n")
	fmt.Fprintf(&b, "run.id=%s\n", index.RunID)
	if index.Driver.Kind != "" {
		fmt.Fprintf(&b, "driver.kind=%s\n", index.Driver.Kind)
	}
	if index.Driver.ServerURL != "" {
		fmt.Fprintf(&b, "driver.serverUrl=%s\n", index.Driver.ServerURL)
	}
	if index.Driver.Workers > 0 {
		fmt.Fprintf(&b, "driver.workers=%d\n", index.Driver.Workers)
	}
	if index.Runner.Version != "" {
		fmt.Fprintf(&b, "runner.version=%s\n", index.Runner.Version)
	}

	if err := os.WriteFile(filepath.Join(allureDir, "environment.properties"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}

func writeAllureExecutor(allureDir string, index *Index) error {
	name := index.Runner.Name
	if name == "" {
		name = "uiflow"
	}
	executor := AllureExecutor{
		Name:       name,
		Type:       "uiflow",
		BuildName:  index.RunID,
		ReportName: name + " " + index.Runner.Version,
	}

	data, err := json.MarshalIndent(executor, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal executor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(allureDir, "executor.json"), data, 0o644); err != nil {
		return fmt.Errorf("write executor.json: %w", err)
	}
	return nil
}
