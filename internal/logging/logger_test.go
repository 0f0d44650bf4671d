package logging

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoggerWritesToBuffer(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Info("started", map[string]string{"watch_dir": "/tmp"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entry.Level)
	}
	if entry.Message != "started" {
		t.Fatalf("expected message started, got %q", entry.Message)
	}
	if entry.Context["watch_dir"] != "/tmp" {
		t.Fatalf("expected context watch_dir=/tmp, got %v", entry.Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelWarning, io.Discard)

	logger.Info("info", nil)
	logger.Warn("warn", nil)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %q", entries[0].Level)
	}
}

func TestLoggerFormatHelpers(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Infof("found %d servers", 2)
	logger.Warnf("probe to %s failed", "255.255.255.255:53530")
	logger.Errorf("watch %q: %v", "/data", errors.New("denied"))

	entries := buffer.List()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "found 2 servers" {
		t.Fatalf("unexpected info message %q", entries[0].Message)
	}
	if entries[1].Level != LevelWarning || entries[2].Level != LevelError {
		t.Fatalf("unexpected levels %q %q", entries[1].Level, entries[2].Level)
	}
	if entries[2].Message != `watch "/data": denied` {
		t.Fatalf("unexpected error message %q", entries[2].Message)
	}
}

func TestLoggerOutputFormat(t *testing.T) {
	var output bytes.Buffer
	logger := NewLoggerWithOutput(nil, LevelInfo, &output)

	logger.Warn("watch removal failed", map[string]string{"path": "/a", "error": "gone"})

	line := output.String()
	if !strings.Contains(line, `level=warning msg="watch removal failed" error="gone" path="/a"`) {
		t.Fatalf("unexpected output line %q", line)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	entries []LogEntry
	err     error
}

func (sink *recordingSink) WriteEntry(entry LogEntry) error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.entries = append(sink.entries, entry)
	return sink.err
}

func (sink *recordingSink) snapshot() []LogEntry {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return append([]LogEntry(nil), sink.entries...)
}

func TestLoggerInstallSinkOnce(t *testing.T) {
	logger := NewLoggerWithOutput(nil, LevelInfo, io.Discard)
	first := &recordingSink{}
	second := &recordingSink{}

	if !logger.InstallSink(first) {
		t.Fatalf("expected first install to succeed")
	}
	if logger.InstallSink(second) {
		t.Fatalf("expected second install to be a no-op")
	}

	derived := logger.With(map[string]string{"component": "watcher"})
	derived.Info("hello", nil)

	if got := len(first.snapshot()); got != 1 {
		t.Fatalf("expected first sink to receive 1 entry, got %d", got)
	}
	if got := len(second.snapshot()); got != 0 {
		t.Fatalf("expected second sink to receive nothing, got %d", got)
	}
	if first.snapshot()[0].Context["component"] != "watcher" {
		t.Fatalf("expected derived context to reach sink")
	}
}

func TestLoggerSinkFailureDoesNotPanic(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)
	logger.InstallSink(&recordingSink{err: errors.New("disk full")})

	logger.Error("still logged", nil)

	if len(buffer.List()) != 1 {
		t.Fatalf("expected entry to reach buffer despite sink failure")
	}
}

func TestLoggerStreamDeliversAllEntries(t *testing.T) {
	logger := NewLoggerWithOutput(NewLogBuffer(50), LevelInfo, io.Discard)
	output, cancel := logger.Subscribe()
	defer cancel()

	const total = 50
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			logger.Info("message", nil)
		}
		close(done)
	}()

	received := 0
	deadline := time.After(2 * time.Second)
	for received < total {
		select {
		case <-output:
			received++
		case <-deadline:
			t.Fatalf("timed out after receiving %d entries", received)
		}
	}

	<-done
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warn":    LevelWarning,
		"warning": LevelWarning,
		"Error":   LevelError,
	}
	for raw, expected := range cases {
		level, ok := ParseLevel(raw)
		if !ok || level != expected {
			t.Fatalf("ParseLevel(%q) = %q, %v; expected %q", raw, level, ok, expected)
		}
	}
	if _, ok := ParseLevel("verbose"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestLevelLabel(t *testing.T) {
	cases := map[Level]string{
		LevelDebug:   "DEBUG",
		LevelInfo:    "INFO",
		LevelWarning: "WARN",
		LevelError:   "ERROR",
		"":           "INFO",
	}
	for level, expected := range cases {
		if got := level.Label(); got != expected {
			t.Fatalf("expected %q label %q, got %q", level, expected, got)
		}
	}
}
