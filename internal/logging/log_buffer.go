package logging

import (
	"sync"
	"time"

	"nascraft/internal/buffer"
)

// LogBuffer retains recent entries so late subscribers can catch up.
type LogBuffer struct {
	mu      sync.Mutex
	entries *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: buffer.NewRing[LogEntry](size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entries == nil {
		return
	}

	b.entries.Add(entry)
}

func (b *LogBuffer) List() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.entries.List()
}

// Since returns buffered entries at or above minLevel newer than since.
func (b *LogBuffer) Since(since time.Time, minLevel Level) []LogEntry {
	entries := b.List()
	filtered := make([]LogEntry, 0, len(entries))
	for _, entry := range entries {
		if !since.IsZero() && !entry.Timestamp.After(since) {
			continue
		}
		if !LevelAtLeast(entry.Level, minLevel) {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}
