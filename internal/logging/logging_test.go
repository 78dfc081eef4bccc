package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("round trip of %v gave %v, %v", level, parsed, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("expected JSON, got %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("expected text default, got %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "chorder" {
		t.Errorf("expected component chorder, got %s", cfg.Component)
	}
	if !strings.HasSuffix(cfg.FilePath, "chorder.log") {
		t.Errorf("unexpected default log path %s", cfg.FilePath)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:     LevelInfo,
		Format:    FormatJSON,
		Writer:    &buf,
		Component: "test",
	})
	if err != nil {
		t.Fatalf("failed to create JSON logger: %v", err)
	}
	defer logger.Close()

	logger.Info("chord resolved", "token", "a")
	logger.Debug("hidden")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not one JSON record: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "chord resolved" || rec["token"] != "a" || rec["component"] != "test" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelDebug, Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.WithComponent("engine").Debug("event dropped")
	if !strings.Contains(buf.String(), "component=engine") {
		t.Errorf("component missing: %s", buf.String())
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelInfo, Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	engineLog := logger.WithComponent("engine")

	engineLog.Debug("before")
	if strings.Contains(buf.String(), "before") {
		t.Fatal("debug record written at info level")
	}

	logger.SetLevel(LevelDebug)
	if logger.Level() != LevelDebug {
		t.Errorf("expected debug level, got %v", logger.Level())
	}
	engineLog.Debug("after")
	if !strings.Contains(buf.String(), "after") {
		t.Errorf("derived logger did not follow SetLevel: %q", buf.String())
	}

	logger.SetLevel(LevelError)
	engineLog.Warn("quiet")
	if strings.Contains(buf.String(), "quiet") {
		t.Error("warn record written at error level")
	}
}

func TestLoggerLast(t *testing.T) {
	logger, err := New(&Config{Level: LevelDebug, Output: "discard"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	if _, ok := logger.Last(); ok {
		t.Error("fresh logger has no last entry")
	}

	logger.Info("table loaded")
	logger.Debug("too quiet for the tail")
	logger.WithComponent("source").Warn("device busy")

	e, ok := logger.Last()
	if !ok {
		t.Fatal("expected a last entry")
	}
	if e.Message != "device busy" || e.Level != LevelWarn {
		t.Errorf("unexpected last entry %+v", e)
	}
}

func TestTailWithoutNext(t *testing.T) {
	tail := NewTail(nil, LevelWarn)
	l := slog.New(tail.WithGroup("g"))
	l.Info("ignored")
	l.Error("kept")

	e, ok := tail.Last()
	if !ok || e.Message != "kept" {
		t.Errorf("unexpected tail %+v %v", e, ok)
	}
}

func TestFileRotator(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "test.log")

	rotator, err := NewFileRotator(&Config{
		FilePath:   logPath,
		MaxSize:    1,
		MaxAge:     7,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	testData := []byte("test log line\n")
	n, err := rotator.Write(testData)
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if n != len(testData) {
		t.Errorf("expected to write %d bytes, wrote %d", len(testData), n)
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
	if err := rotator.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
}

func TestFileRotatorRotatesBySize(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(&Config{
		FilePath:   logPath,
		MaxSize:    1,
		MaxBackups: 5,
		Compress:   true,
	})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 3; i++ {
		if _, err := rotator.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := rotator.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := LogFiles(logPath)
	if err != nil {
		t.Fatalf("failed to get log files: %v", err)
	}
	var gz []string
	for _, f := range files[1:] {
		if strings.HasSuffix(f, ".gz") {
			gz = append(gz, f)
		}
	}
	if len(gz) != 2 {
		t.Fatalf("expected 2 compressed rotations, got %v", files)
	}

	f, err := os.Open(gz[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("not gzip: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil || len(data) != len(chunk) {
		t.Errorf("rotated file holds %d bytes (%v), want %d", len(data), err, len(chunk))
	}
}

func TestFileRotatorRotatesDaily(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 100})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	day := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	rotator.now = func() time.Time { return day }
	rotator.lastTime = day
	rotator.Write([]byte("before midnight\n"))

	day = day.Add(2 * time.Minute)
	rotator.Write([]byte("after midnight\n"))

	files, _ := LogFiles(logPath)
	if len(files) != 2 {
		t.Fatalf("expected one rotation, got %v", files)
	}
	data, _ := os.ReadFile(logPath)
	if string(data) != "after midnight\n" {
		t.Errorf("current file holds %q", data)
	}
}

func TestLogFilesMissing(t *testing.T) {
	files, err := LogFiles(filepath.Join(t.TempDir(), "none.log"))
	if err != nil {
		t.Fatalf("LogFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}
