package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "UIFLOW_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the uiflow home directory.
//
// Resolution order:
//  1. $UIFLOW_HOME environment variable
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. Current working directory
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetImageDir returns <home>/images, the default template image root.
func GetImageDir() string {
	return filepath.Join(GetHome(), "images")
}

// GetScreenshotDir returns <home>/screenshots.
func GetScreenshotDir() string {
	return filepath.Join(GetHome(), "screenshots")
}

func resolveHome() string {
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
