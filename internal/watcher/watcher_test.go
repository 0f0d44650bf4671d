package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	watcher, err := NewWithOptions(Options{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() {
		_ = watcher.Close()
	})
	return watcher
}

func collectInto(events chan<- Event) func(Event) {
	return func(event Event) {
		select {
		case events <- event:
		default:
		}
	}
}

func TestWatcherDispatchesCreateEvent(t *testing.T) {
	watcher := newTestWatcher(t)
	dir := t.TempDir()

	events := make(chan Event, 8)
	if err := watcher.WatchRecursive(dir, collectInto(events)); err != nil {
		t.Fatalf("watch dir: %v", err)
	}

	path := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	event, ok := waitForPath(events, path)
	if !ok {
		t.Fatal("timed out waiting for create event")
	}
	if !event.Op.Has(fsnotify.Create) {
		t.Fatalf("expected create op, got %v", event.Op)
	}
}

func TestWatcherRecursiveWatchDispatchesNestedEvent(t *testing.T) {
	watcher := newTestWatcher(t)
	dir := t.TempDir()
	nestedDir := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nestedDir, 0o755); err != nil {
		t.Fatalf("create nested dir: %v", err)
	}

	events := make(chan Event, 8)
	if err := watcher.WatchRecursive(dir, collectInto(events)); err != nil {
		t.Fatalf("watch dir: %v", err)
	}
	if got := watcher.Metrics().ActiveWatches; got != 3 {
		t.Fatalf("expected 3 active watches, got %d", got)
	}

	filePath := filepath.Join(nestedDir, "sample.txt")
	if err := os.WriteFile(filePath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, ok := waitForPath(events, filePath); !ok {
		t.Fatal("timed out waiting for recursive event")
	}
}

func TestWatcherRegistersDirectoriesCreatedLater(t *testing.T) {
	watcher := newTestWatcher(t)
	dir := t.TempDir()

	events := make(chan Event, 16)
	if err := watcher.WatchRecursive(dir, collectInto(events)); err != nil {
		t.Fatalf("watch dir: %v", err)
	}

	created := filepath.Join(dir, "later")
	if err := os.Mkdir(created, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, ok := waitForPath(events, created); !ok {
		t.Fatal("timed out waiting for directory create event")
	}

	filePath := filepath.Join(created, "inside.txt")
	if err := os.WriteFile(filePath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, ok := waitForPath(events, filePath); !ok {
		t.Fatal("timed out waiting for event inside new directory")
	}
}

func TestWatcherUnwatchStopsEvents(t *testing.T) {
	watcher := newTestWatcher(t)
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	events := make(chan Event, 8)
	if err := watcher.WatchRecursive(dir, collectInto(events)); err != nil {
		t.Fatalf("watch dir: %v", err)
	}
	if err := watcher.Unwatch(dir); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	if metrics := watcher.Metrics(); metrics.Roots != 0 || metrics.ActiveWatches != 0 {
		t.Fatalf("expected no watches after unwatch, got %+v", metrics)
	}

	if err := os.WriteFile(filepath.Join(dir, "after.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	select {
	case event := <-events:
		t.Fatalf("unexpected event after unwatch: %+v", event)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcherUnwatchUnknownRoot(t *testing.T) {
	watcher := newTestWatcher(t)
	if err := watcher.Unwatch(t.TempDir()); err == nil {
		t.Fatalf("expected error for unknown root")
	}
}

func TestWatcherRejectsMissingAndFileRoots(t *testing.T) {
	watcher := newTestWatcher(t)
	dir := t.TempDir()

	if err := watcher.WatchRecursive(filepath.Join(dir, "missing"), func(Event) {}); err == nil {
		t.Fatalf("expected error for missing root")
	}
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := watcher.WatchRecursive(file, func(Event) {}); err == nil {
		t.Fatalf("expected error for file root")
	}
	if metrics := watcher.Metrics(); metrics.Roots != 0 {
		t.Fatalf("expected no roots, got %+v", metrics)
	}
}

func TestWatcherMaxWatchesRollsBackRoot(t *testing.T) {
	watcher, err := NewWithOptions(Options{MaxWatches: 2})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()

	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	if err := watcher.WatchRecursive(dir, func(Event) {}); err != ErrMaxWatchesExceeded {
		t.Fatalf("expected ErrMaxWatchesExceeded, got %v", err)
	}
	if metrics := watcher.Metrics(); metrics.Roots != 0 || metrics.ActiveWatches != 0 {
		t.Fatalf("expected rollback, got %+v", metrics)
	}
}

func TestWatcherClosedRejectsWatch(t *testing.T) {
	watcher, err := New()
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := watcher.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := watcher.WatchRecursive(t.TempDir(), func(Event) {}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := watcher.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestWatcherErrorHandlerReceivesErrors(t *testing.T) {
	received := make(chan error, 1)
	watcher, err := NewWithOptions(Options{ErrorHandler: func(err error) {
		received <- err
	}})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()

	watcher.handleError(fsnotify.ErrEventOverflow)

	select {
	case got := <-received:
		if got != fsnotify.ErrEventOverflow {
			t.Fatalf("unexpected error %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("error handler not called")
	}
	if watcher.Metrics().Errors != 1 {
		t.Fatalf("expected error to be counted")
	}
}

func waitForPath(events <-chan Event, path string) (Event, bool) {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Path == path {
				return event, true
			}
		case <-deadline:
			return Event{}, false
		}
	}
}
