package logging

import (
	"strings"
	"time"
)

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Sink persists log entries outside the process, e.g. the on-disk log file.
type Sink interface {
	WriteEntry(entry LogEntry) error
}

// Label returns the bracketed tag written to persisted log lines.
func (level Level) Label() string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelInfo, "":
		return "INFO"
	default:
		return strings.ToUpper(string(level))
	}
}
