// Package logging sets up chorder's slog loggers: text or JSON records,
// written to a terminal stream, a rotated file or both, with a tail of the
// latest record kept for the status display.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the slog handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat parses "text" or "json". An empty string is text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Config describes a logger.
type Config struct {
	Level  Level
	Format Format

	// Output is one of "stdout", "stderr", "file", "both" (stderr and
	// file) or "discard". Writer takes precedence when set.
	Output string
	Writer io.Writer

	// File rotation. MaxSize is in megabytes, MaxAge in days.
	FilePath   string
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool

	AddSource bool

	// Component is attached to every record as component=<name>.
	Component string
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   defaultLogPath(),
		MaxSize:    10,
		MaxAge:     30,
		MaxBackups: 3,
		Compress:   true,
		Component:  "chorder",
	}
}

func defaultLogPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "chorder", "chorder.log")
	case "windows":
		dir := os.Getenv("LOCALAPPDATA")
		if dir == "" {
			dir = os.Getenv("APPDATA")
		}
		return filepath.Join(dir, "chorder", "logs", "chorder.log")
	}
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "chorder", "chorder.log")
}

// Logger is a slog.Logger that owns its log file and its tail.
type Logger struct {
	*slog.Logger

	cfg     *Config
	level   *slog.LevelVar
	tail    *Tail
	rotator *FileRotator
	mu      sync.Mutex
}

// New builds a Logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Logger{cfg: cfg, level: new(slog.LevelVar)}
	l.level.Set(cfg.Level)

	w, err := l.open()
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}

	opts := &slog.HandlerOptions{Level: l.level, AddSource: cfg.AddSource}
	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}

	l.tail = NewTail(h, LevelInfo)
	l.Logger = slog.New(l.tail)
	return l, nil
}

func (l *Logger) open() (io.Writer, error) {
	if l.cfg.Writer != nil {
		return l.cfg.Writer, nil
	}
	out := strings.ToLower(l.cfg.Output)
	switch out {
	case "stdout":
		return os.Stdout, nil
	case "discard":
		return io.Discard, nil
	case "file", "both":
		r, err := NewFileRotator(l.cfg)
		if err != nil {
			return nil, err
		}
		l.rotator = r
		if out == "both" {
			return io.MultiWriter(os.Stderr, r), nil
		}
		return r, nil
	}
	return os.Stderr, nil
}

// WithComponent returns a logger that tags records with name instead. It
// shares the output and the tail of l.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", name)),
		cfg:     l.cfg,
		level:   l.level,
		tail:    l.tail,
		rotator: l.rotator,
	}
}

// SetLevel changes the minimum level of l and of every logger derived
// from it with WithComponent.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	return l.level.Level()
}

// Last returns the most recent record at or above Info.
func (l *Logger) Last() (Entry, bool) {
	return l.tail.Last()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// ParseLevel accepts debug, info, warn (or warning) and error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

// LevelString is the lower-case name ParseLevel accepts.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}
