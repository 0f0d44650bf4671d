// Package logfile persists diagnostic lines to a single size-capped file that
// survives restarts. When an append would push the file past its cap the file
// is truncated to empty first; old content is discarded, not rotated.
package logfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nascraft/internal/logging"
	"nascraft/internal/metrics"
)

const (
	DefaultMaxBytes  int64 = 5 * 1024 * 1024
	DefaultTailBytes int64 = 512 * 1024
	webLevelPrefix         = "WEB:"
)

var ErrPathRequired = errors.New("log file path is required")

type Options struct {
	Path     string
	MaxBytes int64
	Registry *metrics.Registry
	Now      func() time.Time
}

// File is safe for concurrent use. Appends and tail reads are serialized by
// one lock that is independent of every other component.
type File struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	registry *metrics.Registry
	now      func() time.Time
	dropped  atomic.Uint64
}

// DefaultPath returns <dataDir>/logs/<appName>.log.
func DefaultPath(dataDir, appName string) string {
	return filepath.Join(dataDir, "logs", appName+".log")
}

// Open prepares a File. No filesystem access happens until the first append.
func Open(options Options) (*File, error) {
	path := strings.TrimSpace(options.Path)
	if path == "" {
		return nil, ErrPathRequired
	}
	maxBytes := options.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &File{
		path:     filepath.Clean(path),
		maxBytes: maxBytes,
		registry: options.Registry,
		now:      now,
	}, nil
}

func (f *File) Path() string {
	if f == nil {
		return ""
	}
	return f.path
}

func (f *File) MaxBytes() int64 {
	if f == nil {
		return 0
	}
	return f.maxBytes
}

// Dropped reports how many diagnostic writes failed and were discarded.
func (f *File) Dropped() uint64 {
	if f == nil {
		return 0
	}
	return f.dropped.Load()
}

// AppendLine writes text followed by a newline, truncating the file first when
// the write would exceed the cap.
func (f *File) AppendLine(text string) error {
	if f == nil {
		return errors.New("log file is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory %s: %w", dir, err)
	}

	var size int64
	info, err := os.Stat(f.path)
	switch {
	case err == nil:
		size = info.Size()
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("stat log file %s: %w", f.path, err)
	}

	flags := os.O_APPEND | os.O_CREATE | os.O_WRONLY
	incoming := int64(len(text)) + 1
	truncate := size > 0 && size+incoming > f.maxBytes
	if truncate {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(f.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", f.path, err)
	}
	if truncate {
		f.registry.IncLogTruncation()
	}
	if _, err := file.WriteString(text + "\n"); err != nil {
		_ = file.Close()
		return fmt.Errorf("write log file %s: %w", f.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close log file %s: %w", f.path, err)
	}
	f.registry.IncLogLineWritten()
	return nil
}

// ReadTail returns up to maxBytes from the end of the file. Invalid UTF-8 is
// replaced rather than reported. A missing file reads as empty.
func (f *File) ReadTail(maxBytes int64) (string, error) {
	if f == nil {
		return "", errors.New("log file is nil")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultTailBytes
	}
	if maxBytes > f.maxBytes {
		maxBytes = f.maxBytes
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("open log file %s: %w", f.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat log file %s: %w", f.path, err)
	}
	offset := info.Size() - maxBytes
	if offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek log file %s: %w", f.path, err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("read log file %s: %w", f.path, err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

func (f *File) Infof(format string, args ...any) {
	f.appendDiagnostic(logging.LevelInfo.Label(), fmt.Sprintf(format, args...))
}

func (f *File) Warnf(format string, args ...any) {
	f.appendDiagnostic(logging.LevelWarning.Label(), fmt.Sprintf(format, args...))
}

func (f *File) Errorf(format string, args ...any) {
	f.appendDiagnostic(logging.LevelError.Label(), fmt.Sprintf(format, args...))
}

// AppendWebLog records an entry forwarded by the UI layer under a WEB:<LEVEL> tag.
func (f *File) AppendWebLog(level, message string) error {
	if f == nil {
		return errors.New("log file is nil")
	}
	label := strings.ToUpper(strings.TrimSpace(level))
	if label == "" {
		label = logging.LevelInfo.Label()
	}
	return f.AppendLine(FormatLine(f.now(), webLevelPrefix+label, message))
}

// WriteEntry implements logging.Sink.
func (f *File) WriteEntry(entry logging.LogEntry) error {
	if f == nil {
		return nil
	}
	message := entry.Message
	if rendered := logging.FormatFields(entry.Context); rendered != "" {
		message += " " + rendered
	}
	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = f.now()
	}
	if err := f.AppendLine(FormatLine(timestamp, entry.Level.Label(), message)); err != nil {
		f.drop()
		return err
	}
	return nil
}

func (f *File) appendDiagnostic(label, message string) {
	if f == nil {
		return
	}
	if err := f.AppendLine(FormatLine(f.now(), label, message)); err != nil {
		f.drop()
	}
}

func (f *File) drop() {
	f.dropped.Add(1)
	f.registry.IncLogWriteFailure()
}

// FormatLine renders "<epoch_ms> [<LABEL>] <message>" on a single line.
func FormatLine(timestamp time.Time, label, message string) string {
	return fmt.Sprintf("%d [%s] %s", timestamp.UnixMilli(), label, flattenLine(message))
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flattenLine(message string) string {
	if !strings.ContainsAny(message, "\r\n") {
		return message
	}
	return lineBreaks.Replace(message)
}
