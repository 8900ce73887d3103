// internal/config/config.go
//
// This package handles configuration and the .layerdeck directory structure.
// Every project that uses layerdeck gets a .layerdeck/ folder next to its
// document.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectDirName is the name of the directory we create in each project.
	ProjectDirName = ".layerdeck"

	defaultDocument   = "layers.yaml"
	defaultJournal    = "state/journal.db"
	defaultDebounceMS = 150
	defaultBase       = 100
)

const defaultProjectConfigYAML = `# layerdeck project configuration
version: 1

# Layer document, relative to the project directory.
document: layers.yaml

# Paint index given to the bottom layer. The drawing canvas sits one below.
zindex:
  base: 100

# HTTP bridge for producers (image pipeline, drawing tool).
# Override with LAYERDECK_BRIDGE_ENABLED / _HOST / _PORT / _STREAM_BUFFER /
# _KEEPALIVE (a duration such as 20s).
bridge:
  enabled: true
  host: 127.0.0.1
  port: 8765
  # Events queued per /events/stream client before the oldest is dropped.
  stream_buffer: 100
  # Comment line interval on idle streams. Negative disables it.
  keepalive_ms: 20000

# Order history kept in SQLite.
journal:
  enabled: true
  path: state/journal.db

# Reload the document when it changes on disk.
watch:
  enabled: true
  debounce_ms: 150
`

// ZIndexConfig controls paint index derivation.
type ZIndexConfig struct {
	Base int `yaml:"base"`
}

// BridgeConfig mirrors the bridge block of config.yaml. Enabled is a pointer
// so an omitted key keeps the default.
type BridgeConfig struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	Host         string `yaml:"host,omitempty"`
	Port         int    `yaml:"port,omitempty"`
	StreamBuffer int    `yaml:"stream_buffer,omitempty"`
	KeepAliveMS  int    `yaml:"keepalive_ms,omitempty"`
}

// JournalConfig locates the order history database.
type JournalConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// WatchConfig controls the document watcher.
type WatchConfig struct {
	Enabled    *bool `yaml:"enabled,omitempty"`
	DebounceMS int   `yaml:"debounce_ms,omitempty"`
}

// ProjectConfig models .layerdeck/config.yaml.
type ProjectConfig struct {
	Version  int           `yaml:"version"`
	Document string        `yaml:"document"`
	ZIndex   ZIndexConfig  `yaml:"zindex"`
	Bridge   BridgeConfig  `yaml:"bridge"`
	Journal  JournalConfig `yaml:"journal"`
	Watch    WatchConfig   `yaml:"watch"`
}

// Config holds the runtime configuration for layerdeck.
type Config struct {
	// ProjectDir is the directory layerdeck was started in.
	ProjectDir string

	// StateDir is ProjectDir/.layerdeck
	StateDir string

	Project ProjectConfig
}

// InitProjectDir creates the .layerdeck directory structure and a commented
// default config when none exists.
//
// .layerdeck/
// ├── config.yaml
// ├── logs/    <- layerdeck.log
// └── state/   <- journal.db
func InitProjectDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	for _, dir := range []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads the project config under projectDir, falling back to
// defaults when the file does not exist.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir: abs,
		StateDir:   filepath.Join(abs, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	cfg.Project.normalize(abs)
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// LogPath returns the logbook file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "layerdeck.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// DocumentPath returns the absolute path of the layer document.
func (c *Config) DocumentPath() string {
	return c.Project.Document
}

// ZIndexBase returns the paint index of the bottom layer.
func (c *Config) ZIndexBase() int {
	return c.Project.ZIndex.Base
}

// JournalEnabled reports whether order history is recorded.
func (c *Config) JournalEnabled() bool {
	return boolOr(c.Project.Journal.Enabled, true)
}

// JournalPath returns the absolute path of the history database.
func (c *Config) JournalPath() string {
	return c.Project.Journal.Path
}

// WatchEnabled reports whether the document watcher runs.
func (c *Config) WatchEnabled() bool {
	return boolOr(c.Project.Watch.Enabled, true)
}

// WatchDebounceMS returns the watcher debounce in milliseconds.
func (c *Config) WatchDebounceMS() int {
	return c.Project.Watch.DebounceMS
}

// SetDocument points the project at another document and persists the
// choice back to .layerdeck/config.yaml.
func (c *Config) SetDocument(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config: document path is required")
	}
	c.Project.Document = path
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Document) == "" {
		pc.Document = defaultDocument
	}
	if pc.ZIndex.Base == 0 {
		pc.ZIndex.Base = defaultBase
	}
	if strings.TrimSpace(pc.Journal.Path) == "" {
		pc.Journal.Path = defaultJournal
	}
	if pc.Watch.DebounceMS == 0 {
		pc.Watch.DebounceMS = defaultDebounceMS
	}
}

// normalize resolves the document against the project dir and the journal
// against the .layerdeck dir.
func (pc *ProjectConfig) normalize(base string) {
	pc.Document = resolvePath(base, pc.Document)
	pc.Journal.Path = resolvePath(filepath.Join(base, ProjectDirName), pc.Journal.Path)
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.ZIndex.Base < 1 {
		return fmt.Errorf("zindex.base must be >= 1")
	}
	if pc.Bridge.Port != 0 && (pc.Bridge.Port < 1 || pc.Bridge.Port > 65535) {
		return fmt.Errorf("bridge.port must be between 1 and 65535")
	}
	if pc.Bridge.StreamBuffer < 0 {
		return fmt.Errorf("bridge.stream_buffer must not be negative")
	}
	if pc.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms must not be negative")
	}
	return nil
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.ProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
