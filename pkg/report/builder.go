package report

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/executor"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
)

// BuilderConfig contains configuration for building the report skeleton.
type BuilderConfig struct {
	Driver        DriverInfo
	RunnerName    string
	RunnerVersion string
}

// BuildSkeleton creates the initial report from parsed documents. Every flow
// and step starts out pending. Call it after validation, before execution.
func BuildSkeleton(docs []*flow.Document, cfg BuilderConfig) *Index {
	now := time.Now()

	index := &Index{
		Version:     Version,
		RunID:       uuid.NewString(),
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Driver:      cfg.Driver,
		Runner: RunnerInfo{
			Name:    cfg.RunnerName,
			Version: cfg.RunnerVersion,
		},
		Summary: Summary{
			Total:   len(docs),
			Pending: len(docs),
		},
		Flows: make([]FlowEntry, len(docs)),
	}

	for i, doc := range docs {
		id := executor.FlowID(i)
		steps := buildSteps(doc.Steps)
		index.Flows[i] = FlowEntry{
			Index:      i,
			ID:         id,
			Name:       doc.DisplayName(),
			SourceFile: doc.SourcePath,
			AssetsDir:  filepath.Join("assets", id),
			Status:     StatusPending,
			StepSummary: StepSummary{
				Total:   len(steps),
				Pending: len(steps),
			},
			Steps: steps,
		}
	}

	return index
}

func buildSteps(steps []flow.Step) []StepEntry {
	entries := make([]StepEntry, len(steps))
	for i, step := range steps {
		entries[i] = StepEntry{
			Index:  i + 1,
			Name:   step.Name(),
			Type:   step.RawType(),
			Status: StatusPending,
		}
	}
	return entries
}
