package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nascraft/internal/logging"
)

const defaultSettingsDebounce = 250 * time.Millisecond

var errSettingsPathRequired = errors.New("settings path is required")

type SettingsWatcherOptions struct {
	Path     string
	Debounce time.Duration
	Logger   *logging.Logger
	// OnChange receives the reloaded settings. A removed file is delivered
	// as empty Settings; a file that fails to parse is not delivered.
	OnChange func(Settings)
}

// SettingsWatcher reloads the settings file whenever it changes on disk. The
// parent directory is watched so editors that replace the file by rename are
// followed.
type SettingsWatcher struct {
	path     string
	dir      string
	debounce time.Duration
	logger   *logging.Logger
	onChange func(Settings)

	mu       sync.Mutex
	timer    *time.Timer
	closed   bool
	reloadMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func WatchSettingsFile(options SettingsWatcherOptions) (*SettingsWatcher, error) {
	path := strings.TrimSpace(options.Path)
	if path == "" {
		return nil, errSettingsPathRequired
	}
	if absolute, err := filepath.Abs(path); err == nil {
		path = absolute
	}
	path = filepath.Clean(path)

	debounce := options.Debounce
	if debounce <= 0 {
		debounce = defaultSettingsDebounce
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	settingsWatcher := &SettingsWatcher{
		path:     path,
		dir:      filepath.Dir(path),
		debounce: debounce,
		logger:   logger.With(map[string]string{"component": "settings", "path": path}),
		onChange: options.OnChange,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	settingsWatcher.wg.Add(1)
	go settingsWatcher.run(fsWatcher)
	return settingsWatcher, nil
}

// Ready is closed once the settings directory is first being watched.
func (w *SettingsWatcher) Ready() <-chan struct{} {
	return w.ready
}

func (w *SettingsWatcher) Path() string {
	return w.path
}

func (w *SettingsWatcher) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	// Wait out a reload that was already running.
	w.reloadMu.Lock()
	w.reloadMu.Unlock()
	return nil
}

func (w *SettingsWatcher) run(fsWatcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsWatcher.Close()

	for {
		if !w.addDir(fsWatcher) {
			return
		}
		if !w.follow(fsWatcher) {
			return
		}
		// The directory itself went away; wait for it to come back.
		_ = fsWatcher.Remove(w.dir)
	}
}

// addDir retries with backoff until the directory can be watched. It returns
// false when the watcher is closed first.
func (w *SettingsWatcher) addDir(fsWatcher *fsnotify.Watcher) bool {
	backoff := 100 * time.Millisecond
	for {
		err := fsWatcher.Add(w.dir)
		if err == nil {
			w.logger.Info("watching settings file for changes", nil)
			w.readyOnce.Do(func() { close(w.ready) })
			return true
		}
		w.logger.Warn("settings watch retry failed", map[string]string{
			"error": err.Error(),
		})
		select {
		case <-w.done:
			return false
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

// follow consumes events until the watcher closes (false) or the watched
// directory disappears (true).
func (w *SettingsWatcher) follow(fsWatcher *fsnotify.Watcher) bool {
	for {
		select {
		case <-w.done:
			return false
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return false
			}
			name := filepath.Clean(event.Name)
			if name == w.dir && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Warn("settings directory removed", nil)
				w.schedule()
				return true
			}
			if name != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return false
			}
			w.logger.Warn("settings watch error", map[string]string{
				"error": err.Error(),
			})
		}
	}
}

func (w *SettingsWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *SettingsWatcher) reload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	settings, err := LoadSettings(w.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("settings reload failed", map[string]string{
				"error": err.Error(),
			})
			return
		}
		w.logger.Info("settings file removed", nil)
		settings = Settings{}
	} else {
		w.logger.Info("settings reloaded", map[string]string{
			"watch_dirs": strings.Join(settings.Watch.Dirs, string(os.PathListSeparator)),
		})
	}
	if w.onChange != nil {
		w.onChange(settings)
	}
}
