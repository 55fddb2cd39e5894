package config

import (
	"testing"
	"time"
)

func TestDefaultRuntime(t *testing.T) {
	r := DefaultRuntime()

	if r.RetryTimes != 3 {
		t.Errorf("RetryTimes = %d, want 3", r.RetryTimes)
	}
	if r.RetryInterval != 0.5 {
		t.Errorf("RetryInterval = %v, want 0.5", r.RetryInterval)
	}
	if r.StopOnError {
		t.Error("StopOnError should default to false")
	}
	if r.MaxComponentDepth != 32 {
		t.Errorf("MaxComponentDepth = %d, want 32", r.MaxComponentDepth)
	}
	if !r.ScreenshotOnFailure {
		t.Error("ScreenshotOnFailure should default to true")
	}
	if r.RetryIntervalDuration() != 500*time.Millisecond {
		t.Errorf("RetryIntervalDuration() = %v", r.RetryIntervalDuration())
	}
}

func TestMergeRuntime(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]interface{}
		check   func(t *testing.T, r Runtime)
		wantErr bool
	}{
		{
			name: "nil keeps base",
			raw:  nil,
			check: func(t *testing.T, r Runtime) {
				if r != DefaultRuntime() {
					t.Errorf("got %+v", r)
				}
			},
		},
		{
			name: "overrides only given keys",
			raw:  map[string]interface{}{"stop_on_error": true, "retry_interval": 2},
			check: func(t *testing.T, r Runtime) {
				if !r.StopOnError || r.RetryInterval != 2 || r.RetryTimes != 3 {
					t.Errorf("got %+v", r)
				}
			},
		},
		{
			name: "weak typing",
			raw:  map[string]interface{}{"retry_times": "5", "screenshot_on_failure": "false"},
			check: func(t *testing.T, r Runtime) {
				if r.RetryTimes != 5 || r.ScreenshotOnFailure {
					t.Errorf("got %+v", r)
				}
			},
		},
		{
			name: "unknown keys ignored",
			raw:  map[string]interface{}{"theme": "dark"},
			check: func(t *testing.T, r Runtime) {
				if r != DefaultRuntime() {
					t.Errorf("got %+v", r)
				}
			},
		},
		{
			name:    "negative retry rejected",
			raw:     map[string]interface{}{"retry_times": -1},
			wantErr: true,
		},
		{
			name:    "zero depth rejected",
			raw:     map[string]interface{}{"max_component_depth": 0},
			wantErr: true,
		},
		{
			name:    "non-numeric interval",
			raw:     map[string]interface{}{"retry_interval": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeRuntime(DefaultRuntime(), tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("MergeRuntime() expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("MergeRuntime() error = %v", err)
			}
			tt.check(t, got)
		})
	}
}
