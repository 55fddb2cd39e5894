package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTestReport writes index as report.json under dir.
func writeTestReport(t *testing.T, dir string, index *Index) {
	t.Helper()
	if err := atomicWriteJSON(filepath.Join(dir, IndexFile), index); err != nil {
		t.Fatalf("write index: %v", err)
	}
}

// readAllureResults loads every *-result.json in dir/allure-results keyed by
// result name.
func readAllureResults(t *testing.T, dir string) map[string]AllureResult {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, AllureDir, "*-result.json"))
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]AllureResult, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			t.Fatalf("read %s: %v", m, err)
		}
		var r AllureResult
		if err := json.Unmarshal(data, &r); err != nil {
			t.Fatalf("unmarshal %s: %v", m, err)
		}
		out[r.Name] = r
	}
	return out
}

func ms(v int64) *int64 { return &v }

func sampleIndex(now time.Time) *Index {
	end := now.Add(3 * time.Second)
	errMsg := "1 of 2 steps failed"
	return &Index{
		Version:     Version,
		RunID:       "run-1",
		Status:      StatusFailed,
		StartTime:   now,
		EndTime:     &end,
		LastUpdated: now,
		Driver:      DriverInfo{Kind: "remote", ServerURL: "http://agent:8100", Workers: 2},
		Runner:      RunnerInfo{Name: "uiflow", Version: "0.3.0"},
		Summary:     Summary{Total: 2, Passed: 1, Failed: 1},
		Flows: []FlowEntry{
			{
				Index: 0, ID: "flow-000", Name: "Login", SourceFile: "flows/login.yaml",
				Worker: "device-0", Status: StatusPassed,
				StartTime: &now, EndTime: &end, Duration: ms(3000),
				Steps: []StepEntry{
					{Index: 1, Name: "tap login", Type: "click", Status: StatusPassed, Duration: ms(1200)},
				},
				Outputs: map[string]interface{}{"token": "abc", "count": 2},
			},
			{
				Index: 1, ID: "flow-001", Name: "Checkout", SourceFile: "flows/checkout.yaml",
				Worker: "device-1", Status: StatusFailed,
				StartTime: &now, Duration: ms(2000), Error: &errMsg,
				Steps: []StepEntry{
					{Index: 1, Name: "open cart", Type: "click", Status: StatusPassed, Duration: ms(500)},
					{Index: 2, Name: "balance", Type: "assert", Status: StatusFailed, Duration: ms(700),
						Error: "expected 1, got 2", Category: "assertion",
						Screenshot: "assets/flow-001/failed_02_balance.png"},
					{Index: 3, Name: "pay", Type: "click", Status: StatusPending},
				},
			},
		},
	}
}

func TestGenerateAllure(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeTestReport(t, dir, sampleIndex(now))

	shotDir := filepath.Join(dir, "assets", "flow-001")
	if err := os.MkdirAll(shotDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(shotDir, "failed_02_balance.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := GenerateAllure(dir); err != nil {
		t.Fatalf("GenerateAllure: %v", err)
	}

	results := readAllureResults(t, dir)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	login := results["Login"]
	if login.Status != "passed" || login.Stage != "finished" {
		t.Errorf("unexpected login result %+v", login)
	}
	if login.UUID == "" || login.UUID == results["Checkout"].UUID {
		t.Errorf("expected distinct uuids, got %q", login.UUID)
	}
	if login.Start != now.UnixMilli() || login.Stop != now.Add(3*time.Second).UnixMilli() {
		t.Errorf("unexpected times %d..%d", login.Start, login.Stop)
	}
	if len(login.Steps) != 1 || login.Steps[0].Name != "click: tap login" {
		t.Errorf("unexpected steps %+v", login.Steps)
	}
	if len(login.Parameters) != 2 || login.Parameters[0].Name != "count" || login.Parameters[1].Value != "abc" {
		t.Errorf("unexpected parameters %+v", login.Parameters)
	}

	checkout := results["Checkout"]
	if checkout.Status != "failed" || checkout.StatusDetails.Message != "1 of 2 steps failed" {
		t.Errorf("unexpected checkout result %+v", checkout)
	}
	if !strings.Contains(checkout.StatusDetails.Trace, "category=assertion") {
		t.Errorf("trace should carry the failure category, got %q", checkout.StatusDetails.Trace)
	}
	if got := checkout.Steps[2].Status; got != "skipped" {
		t.Errorf("pending step status = %q, want skipped", got)
	}
	// Stop falls back to start + duration without an end time.
	if checkout.Stop != now.UnixMilli()+2000 {
		t.Errorf("Stop = %d, want start+2000", checkout.Stop)
	}

	failed := checkout.Steps[1]
	if failed.Start != now.UnixMilli()+500 || failed.Stop != now.UnixMilli()+1200 {
		t.Errorf("unexpected failed step times %d..%d", failed.Start, failed.Stop)
	}
	if len(checkout.Attachments) != 1 || checkout.Attachments[0].Source != "flow-001-failed_02_balance.png" {
		t.Fatalf("unexpected attachments %+v", checkout.Attachments)
	}
	if _, err := os.Stat(filepath.Join(dir, AllureDir, "flow-001-failed_02_balance.png")); err != nil {
		t.Errorf("attachment not copied: %v", err)
	}
}

func TestGenerateAllure_MetadataFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestReport(t, dir, sampleIndex(time.Now()))
	if err := GenerateAllure(dir); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, AllureDir, "categories.json"))
	if err != nil {
		t.Fatal(err)
	}
	var categories []AllureCategory
	if err := json.Unmarshal(data, &categories); err != nil {
		t.Fatal(err)
	}
	if len(categories) != 6 {
		t.Errorf("expected 6 categories, got %d", len(categories))
	}

	env, err := os.ReadFile(filepath.Join(dir, AllureDir, "environment.properties"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"run.id=run-1", "driver.kind=remote", "driver.workers=2", "runner.version=0.3.0"} {
		if !strings.Contains(string(env), want) {
			t.Errorf("environment.properties missing %q:\n%s", want, env)
		}
	}

	data, err = os.ReadFile(filepath.Join(dir, AllureDir, "executor.json"))
	if err != nil {
		t.Fatal(err)
	}
	var exec AllureExecutor
	if err := json.Unmarshal(data, &exec); err != nil {
		t.Fatal(err)
	}
	if exec.Name != "uiflow" || exec.BuildName != "run-1" {
		t.Errorf("unexpected executor %+v", exec)
	}
}

func TestGenerateAllure_ReportMissing(t *testing.T) {
	if err := GenerateAllure(t.TempDir()); err == nil {
		t.Error("expected error for missing report.json")
	}
}

func TestAllureHistoryIDDeterministic(t *testing.T) {
	a := fnv32aHash("Login:flows/login.yaml")
	b := fnv32aHash("Login:flows/login.yaml")
	c := fnv32aHash("Login:flows/other.yaml")
	if a != b || a == c || len(a) != 8 {
		t.Errorf("unexpected hashes %q %q %q", a, b, c)
	}
}

func TestCopyFile_SourceMissing(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.png")
	copyFile(filepath.Join(t.TempDir(), "missing.png"), dst)
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("destination should not be created for a missing source")
	}
}
