package watcher

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"nascraft/internal/fsutil"
)

type debounceEntry struct {
	timer *time.Timer
	event Event
}

type debouncer struct {
	duration time.Duration
	entries  map[string]debounceEntry
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]debounceEntry),
	}
}

// schedule records event for path and (re)arms its timer. Operations seen
// within one window are merged so a create followed by a write still reports
// the create. It returns true when the event was merged into a pending one.
func (debouncer *debouncer) schedule(path string, event Event, flush func(string)) bool {
	if debouncer == nil {
		return false
	}
	entry := debouncer.entries[path]
	merged := entry.timer != nil
	if merged {
		event.Op |= entry.event.Op
		entry.timer.Reset(debouncer.duration)
	} else {
		entry.timer = time.AfterFunc(debouncer.duration, func() {
			flush(path)
		})
	}
	entry.event = event
	debouncer.entries[path] = entry
	return merged
}

func (debouncer *debouncer) pop(path string) (Event, bool) {
	if debouncer == nil {
		return Event{}, false
	}
	entry, ok := debouncer.entries[path]
	if !ok {
		return Event{}, false
	}
	delete(debouncer.entries, path)
	return entry.event, true
}

func (debouncer *debouncer) stop() {
	if debouncer == nil {
		return
	}
	for _, entry := range debouncer.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	debouncer.entries = nil
}

func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	var existing []string
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			existing = watcher.trackCreatedDir(event.Name)
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		watcher.forgetDir(event.Name)
	}

	now := time.Now().UTC()
	watcher.schedule(Event{Path: event.Name, Op: event.Op, Timestamp: now})
	for _, path := range existing {
		watcher.schedule(Event{Path: path, Op: fsnotify.Create, Timestamp: now})
	}
}

func (watcher *Watcher) schedule(entry Event) {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	if watcher.closed || watcher.debouncer == nil {
		return
	}
	if !watcher.hasCallbacksLocked(entry.Path) {
		return
	}
	if watcher.debouncer.schedule(entry.Path, entry, watcher.flush) {
		atomic.AddUint64(&watcher.eventsCoalesced, 1)
	}
}

func (watcher *Watcher) flush(path string) {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return
	}
	if watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	event, ok := watcher.debouncer.pop(path)
	if !ok {
		watcher.mutex.Unlock()
		return
	}
	callback := watcher.callbackForPathLocked(path)
	watcher.mutex.Unlock()

	if callback == nil {
		return
	}
	callback(event)
	atomic.AddUint64(&watcher.eventsDelivered, 1)
}

func (watcher *Watcher) hasCallbacksLocked(path string) bool {
	for root := range watcher.roots {
		if fsutil.IsWithin(root, path) {
			return true
		}
	}
	return false
}

// callbackForPathLocked picks the innermost root containing path so nested
// roots report each path once.
func (watcher *Watcher) callbackForPathLocked(path string) func(Event) {
	var (
		best     string
		callback func(Event)
	)
	for root, entry := range watcher.roots {
		if !fsutil.IsWithin(root, path) || entry.callback == nil {
			continue
		}
		if callback == nil || len(root) > len(best) {
			best = root
			callback = entry.callback
		}
	}
	return callback
}
