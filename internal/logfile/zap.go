package logfile

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nascraft/internal/logging"
)

type zapCore struct {
	zapcore.LevelEnabler
	file   *File
	fields []zapcore.Field
}

// NewZapCore adapts the file to zap so zap-based components write the same line format.
func (f *File) NewZapCore(level zapcore.LevelEnabler) zapcore.Core {
	if level == nil {
		level = zapcore.InfoLevel
	}
	return &zapCore{LevelEnabler: level, file: f}
}

// NewZapLogger builds a zap logger backed by the file.
func (f *File) NewZapLogger(level zapcore.LevelEnabler) *zap.Logger {
	return zap.New(f.NewZapCore(level))
}

func (c *zapCore) With(fields []zapcore.Field) zapcore.Core {
	combined := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	combined = append(combined, c.fields...)
	combined = append(combined, fields...)
	return &zapCore{LevelEnabler: c.LevelEnabler, file: c.file, fields: combined}
}

func (c *zapCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *zapCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	encoder := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(encoder)
	}
	for _, field := range fields {
		field.AddTo(encoder)
	}

	context := make(map[string]string, len(encoder.Fields)+1)
	for key, value := range encoder.Fields {
		context[key] = fmt.Sprint(value)
	}
	if entry.LoggerName != "" {
		context["logger"] = entry.LoggerName
	}

	return c.file.WriteEntry(logging.LogEntry{
		Timestamp: entry.Time,
		Level:     levelFromZap(entry.Level),
		Message:   entry.Message,
		Context:   context,
	})
}

func (c *zapCore) Sync() error {
	return nil
}

func levelFromZap(level zapcore.Level) logging.Level {
	switch {
	case level < zapcore.InfoLevel:
		return logging.LevelDebug
	case level == zapcore.InfoLevel:
		return logging.LevelInfo
	case level == zapcore.WarnLevel:
		return logging.LevelWarning
	default:
		return logging.LevelError
	}
}

var globalOnce sync.Once

// InstallGlobal makes the file the process-wide zap sink. Only the first call
// has an effect; it reports whether this call performed the install.
func InstallGlobal(file *File, level zapcore.LevelEnabler) bool {
	if file == nil {
		return false
	}
	installed := false
	globalOnce.Do(func() {
		zap.ReplaceGlobals(file.NewZapLogger(level))
		installed = true
	})
	return installed
}

// ZapLevel maps a logging level onto zap.
func ZapLevel(level logging.Level) zapcore.Level {
	switch level {
	case logging.LevelDebug:
		return zapcore.DebugLevel
	case logging.LevelWarning:
		return zapcore.WarnLevel
	case logging.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
