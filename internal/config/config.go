// Package config handles configuration loading, validation, and management for chorder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"chorder/internal/keys"
)

// Version is the current configuration schema version.
const Version = 1

// Source kinds.
const (
	SourceEvdev    = "evdev"
	SourceTerminal = "terminal"
	SourceScript   = "script"
)

// Config holds the complete chorder configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Keyboard describes the physical keys and the chord table.
	Keyboard KeyboardConfig `toml:"keyboard" json:"keyboard" yaml:"keyboard"`

	// Engine tunes the chord engine run loop.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Source selects where key events come from.
	Source SourceConfig `toml:"source" json:"source" yaml:"source"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Journal records every resolution in SQLite.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	// Metrics exposes engine counters over HTTP.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// DBus publishes resolved tokens on the session bus.
	DBus DBusConfig `toml:"dbus" json:"dbus" yaml:"dbus"`

	// Practice configures the typing practice game.
	Practice PracticeConfig `toml:"practice" json:"practice" yaml:"practice"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// KeyboardConfig holds the key registry and chord table settings.
type KeyboardConfig struct {
	// TablePath is the chord table file. Empty uses the built-in table.
	TablePath string `toml:"table_path" json:"table_path" yaml:"table_path"`

	// InitialMode overrides the table's initial mode.
	InitialMode string `toml:"initial_mode" json:"initial_mode" yaml:"initial_mode"`

	// WatchTable reloads the chord table when its file changes.
	WatchTable bool `toml:"watch_table" json:"watch_table" yaml:"watch_table"`

	// Keys lists the keys in registry order. Empty uses the default wiring.
	Keys []keys.Spec `toml:"keys" json:"keys" yaml:"keys"`
}

// EngineConfig holds run loop settings.
type EngineConfig struct {
	// PollIntervalMs is the time between source drains.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// PollInterval returns PollIntervalMs as a duration.
func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMs) * time.Millisecond
}

// SourceConfig selects the event source.
type SourceConfig struct {
	// Kind is "evdev", "terminal" or "script".
	Kind string `toml:"kind" json:"kind" yaml:"kind"`

	// Device is the evdev device path.
	Device string `toml:"device" json:"device" yaml:"device"`

	// Grab takes the evdev device exclusively.
	Grab bool `toml:"grab" json:"grab" yaml:"grab"`

	// ScriptPath is the event script for the script source.
	ScriptPath string `toml:"script_path" json:"script_path" yaml:"script_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stderr", "stdout", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// JournalConfig holds resolution journal settings.
type JournalConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`
}

// MetricsConfig holds metrics endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// DBusConfig holds D-Bus publisher settings.
type DBusConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	BusName    string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`
	ObjectPath string `toml:"object_path" json:"object_path" yaml:"object_path"`
}

// PracticeConfig holds typing practice settings.
type PracticeConfig struct {
	// Words are the practice targets, cycled in order.
	Words []string `toml:"words" json:"words" yaml:"words"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := ChorderDir()

	return &Config{
		Version: Version,
		Keyboard: KeyboardConfig{
			WatchTable: true,
		},
		Engine: EngineConfig{
			PollIntervalMs: 1,
		},
		Source: SourceConfig{
			Kind:   SourceTerminal,
			Device: "/dev/input/event0",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dir, "chorder.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "journal.db"),
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
		DBus: DBusConfig{
			Enabled:    false,
			BusName:    "org.chorder.Engine",
			ObjectPath: "/org/chorder/Engine",
		},
		Practice: PracticeConfig{
			Words: []string{"the", "chord", "keyboard", "hello", "world"},
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	return NewLoader(path).Load()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Registry builds the key registry described by the configuration.
func (c *Config) Registry() (*keys.Registry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.Keyboard.Keys) == 0 {
		return keys.Default(), nil
	}
	return keys.FromSpecs(c.Keyboard.Keys)
}

// EnsureDirectories creates the directories for files chorder writes.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Journal.Enabled && c.Journal.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ChorderDir returns the base data directory.
// CHORDER_DATA_DIR overrides the platform default.
func ChorderDir() string {
	if envDir := os.Getenv("CHORDER_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with CHORDER_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("CHORDER_TABLE_PATH"); v != "" {
		c.Keyboard.TablePath = v
	}
	if v := os.Getenv("CHORDER_INITIAL_MODE"); v != "" {
		c.Keyboard.InitialMode = v
	}

	if v := os.Getenv("CHORDER_SOURCE"); v != "" {
		c.Source.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("CHORDER_DEVICE"); v != "" {
		c.Source.Device = v
	}
	if v := os.Getenv("CHORDER_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.PollIntervalMs = n
		}
	}

	if v := os.Getenv("CHORDER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHORDER_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	if v := os.Getenv("CHORDER_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("CHORDER_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
		c.Metrics.Enabled = true
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{}
	clone.copyFrom(c)
	return clone
}

// replace overwrites c with a deep copy of src.
func (c *Config) replace(src *Config) {
	src.mu.RLock()
	defer src.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copyFrom(src)
}

func (c *Config) copyFrom(src *Config) {
	c.Version = src.Version
	c.Keyboard = src.Keyboard
	c.Engine = src.Engine
	c.Source = src.Source
	c.Logging = src.Logging
	c.Journal = src.Journal
	c.Metrics = src.Metrics
	c.DBus = src.DBus
	c.Practice = src.Practice
	c.Keyboard.Keys = append([]keys.Spec(nil), src.Keyboard.Keys...)
	c.Practice.Words = append([]string(nil), src.Practice.Words...)
}
