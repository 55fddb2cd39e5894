// Package config handles workspace configuration for the uiflow runner.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Driver types.
const (
	DriverMock   = "mock"
	DriverRemote = "remote"
)

// Database drivers understood by the SQL repository.
const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Config represents the workspace configuration (uiflow.yaml).
type Config struct {
	// Asset locations
	ImageDir      string `yaml:"image_dir"`
	ScreenshotDir string `yaml:"screenshot_dir"`

	Driver   DriverConfig   `yaml:"driver"`
	Database DatabaseConfig `yaml:"database"`

	// YAML repositories, used when no database is configured
	ElementsFile   string `yaml:"elements_file"`
	ComponentsFile string `yaml:"components_file"`

	// Runtime options applied to every run; a flow's own runtime block wins.
	Runtime map[string]interface{} `yaml:"runtime"`

	dir string
}

// DriverConfig selects the automation backend.
type DriverConfig struct {
	Type      string   `yaml:"type"`       // mock or remote
	URL       string   `yaml:"url"`        // device agent base URL
	URLs      []string `yaml:"urls"`       // one agent per parallel worker
	Rate      float64  `yaml:"rate"`       // commands per second, 0 = unlimited
	Burst     int      `yaml:"burst"`      // limiter burst
	TimeoutMs int      `yaml:"timeout_ms"` // per-command timeout
}

// AgentURLs returns the configured device agents, URL first.
func (d DriverConfig) AgentURLs() []string {
	var out []string
	seen := map[string]bool{}
	for _, u := range append([]string{d.URL}, d.URLs...) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// DatabaseConfig points at the element and component tables.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres or sqlite
	DSN    string `yaml:"dsn"`
}

// Load loads configuration from a file. Relative paths in the file are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromDir looks for uiflow.yaml or uiflow.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"uiflow.yaml", "uiflow.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, return defaults
	cfg := &Config{dir: dir}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ImageDir == "" {
		c.ImageDir = GetImageDir()
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = GetScreenshotDir()
	}
	if c.Driver.Type == "" {
		c.Driver.Type = DriverMock
	}
	if c.Driver.Burst <= 0 {
		c.Driver.Burst = 1
	}
	c.ImageDir = c.Resolve(c.ImageDir)
	c.ScreenshotDir = c.Resolve(c.ScreenshotDir)
	c.ElementsFile = c.Resolve(c.ElementsFile)
	c.ComponentsFile = c.Resolve(c.ComponentsFile)
}

// Resolve makes p absolute relative to the config file's directory.
// Empty and absolute paths are returned unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}
