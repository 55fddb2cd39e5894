package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IndexFile is the name of the index inside a report directory.
const IndexFile = "report.json"

// ReadIndex loads report.json from reportDir.
func ReadIndex(reportDir string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(reportDir, IndexFile))
	if err != nil {
		return nil, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse %s: %w", IndexFile, err)
	}
	return &index, nil
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// atomicWriteJSON writes v to a temp file next to path and renames it into
// place, so readers never see a partial document.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
