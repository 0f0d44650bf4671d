package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"nascraft/internal/server"
)

type recordingUpdater struct {
	mu      sync.Mutex
	updates [][]string
	err     error
	notify  chan struct{}
}

func newRecordingUpdater() *recordingUpdater {
	return &recordingUpdater{notify: make(chan struct{}, 8)}
}

func (u *recordingUpdater) UpdateWatchDirs(dirs []string) error {
	u.mu.Lock()
	u.updates = append(u.updates, dirs)
	u.mu.Unlock()
	u.notify <- struct{}{}
	return u.err
}

func (u *recordingUpdater) last() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.updates) == 0 {
		return nil
	}
	return u.updates[len(u.updates)-1]
}

func TestApplyWatchSettingsForwardsDirs(t *testing.T) {
	updater := newRecordingUpdater()
	apply := applyWatchSettings(updater, nil)

	apply(server.Settings{Watch: server.WatchSettings{Dirs: []string{"/srv/a"}}})
	if !reflect.DeepEqual(updater.last(), []string{"/srv/a"}) {
		t.Fatalf("unexpected update %v", updater.last())
	}

	updater.err = errors.New("boom")
	apply(server.Settings{})
	if updater.last() != nil {
		t.Fatalf("expected empty settings to clear the watch set, got %v", updater.last())
	}
}

func TestWatchSettingsFileSkipsPinnedDirs(t *testing.T) {
	t.Setenv("NASCRAFT_DATA_DIR", t.TempDir())
	cfg, err := server.LoadConfig([]string{"--watch-dir", "/srv/pinned"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if watcher := watchSettingsFile(cfg, newRecordingUpdater(), nil); watcher != nil {
		_ = watcher.Close()
		t.Fatalf("expected no settings watcher when dirs come from a flag")
	}
}

func TestWatchSettingsFileAppliesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), server.DefaultSettingsFile)
	updater := newRecordingUpdater()
	watcher := watchSettingsFile(server.Config{SettingsFile: path}, updater, nil)
	if watcher == nil {
		t.Fatalf("expected settings watcher")
	}
	defer watcher.Close()

	select {
	case <-watcher.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("settings watcher never became ready")
	}

	if err := os.WriteFile(path, []byte("watch:\n  dirs: [/srv/photos]\n"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	select {
	case <-updater.notify:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected watch dirs update")
	}
	if !reflect.DeepEqual(updater.last(), []string{"/srv/photos"}) {
		t.Fatalf("unexpected update %v", updater.last())
	}
}
