package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/godbus/dbus/v5"

	"chorder/internal/keys"
	"chorder/internal/logging"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for any validation failure.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	out := make([]string, len(e))
	for i, err := range e {
		out[i] = err.Field
	}
	return out
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateKeyboard(&c.Keyboard)...)
	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateSource(&c.Source)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateDBus(&c.DBus)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateKeyboard(k *KeyboardConfig) ValidationErrors {
	var errs ValidationErrors
	if len(k.Keys) > keys.MaxKeys {
		errs = append(errs, *RangeError("keyboard.keys", 1, keys.MaxKeys))
	}
	if len(k.Keys) > 0 {
		if _, err := keys.FromSpecs(k.Keys); err != nil {
			errs = append(errs, ValidationError{Field: "keyboard.keys", Message: err.Error()})
		}
	}
	return errs
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors
	if e.PollIntervalMs < 1 || e.PollIntervalMs > 1000 {
		errs = append(errs, *RangeError("engine.poll_interval_ms", 1, 1000))
	}
	return errs
}

func validateSource(s *SourceConfig) ValidationErrors {
	var errs ValidationErrors
	switch s.Kind {
	case SourceEvdev:
		if s.Device == "" {
			errs = append(errs, *RequiredFieldError("source.device"))
		}
	case SourceScript:
		if s.ScriptPath == "" {
			errs = append(errs, *RequiredFieldError("source.script_path"))
		}
	case SourceTerminal:
	default:
		errs = append(errs, ValidationError{
			Field:   "source.kind",
			Message: fmt.Sprintf("unknown source %q (want evdev, terminal or script)", s.Kind),
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{Field: "logging.level", Message: err.Error()})
	}
	if l.Format != "text" && l.Format != "json" {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q (want text or json)", l.Format),
		})
	}

	switch l.Output {
	case "stderr", "stdout":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, *RequiredFieldError("logging.file_path"))
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("unknown output %q", l.Output),
		})
	}

	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "must not be negative"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "must not be negative"})
	}
	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	if j.Enabled && j.Path == "" {
		return ValidationErrors{*RequiredFieldError("journal.path")}
	}
	return nil
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.ListenAddr); err != nil {
		return ValidationErrors{{Field: "metrics.listen_addr", Message: err.Error()}}
	}
	return nil
}

func validateDBus(d *DBusConfig) ValidationErrors {
	if !d.Enabled {
		return nil
	}
	var errs ValidationErrors
	if d.BusName == "" || !strings.Contains(d.BusName, ".") {
		errs = append(errs, ValidationError{Field: "dbus.bus_name", Message: "must be a dotted interface name"})
	}
	if !dbus.ObjectPath(d.ObjectPath).IsValid() {
		errs = append(errs, ValidationError{Field: "dbus.object_path", Message: fmt.Sprintf("invalid object path %q", d.ObjectPath)})
	}
	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
