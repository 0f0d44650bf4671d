package watcher

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"nascraft/internal/event"
	"nascraft/internal/fsutil"
	"nascraft/internal/logging"
	"nascraft/internal/metrics"
	"nascraft/internal/platform"
)

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	Capabilities platform.Capabilities
	// Factory creates the OS watcher on the first update. Defaults to an
	// fsnotify Watcher built with Logger and Registry.
	Factory        func() (DirWatcher, error)
	Publisher      Publisher
	Logger         *logging.Logger
	Registry       *metrics.Registry
	Debounce       time.Duration
	MaxWatches     int
	OnUnwatchError func(path string, err error)
}

// Reconciler converges the set of watched directories onto the most recently
// requested set.
type Reconciler struct {
	mutex          sync.Mutex
	watcher        DirWatcher
	watched        map[string]struct{}
	closed         bool
	capabilities   platform.Capabilities
	factory        func() (DirWatcher, error)
	publisher      Publisher
	logger         *logging.Logger
	registry       *metrics.Registry
	onUnwatchError func(path string, err error)
}

func NewReconciler(options ReconcilerOptions) *Reconciler {
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	reconciler := &Reconciler{
		watched:        make(map[string]struct{}),
		capabilities:   options.Capabilities,
		factory:        options.Factory,
		publisher:      options.Publisher,
		logger:         logger.With(map[string]string{"component": "watch_reconciler"}),
		registry:       options.Registry,
		onUnwatchError: options.OnUnwatchError,
	}
	if reconciler.factory == nil {
		reconciler.factory = func() (DirWatcher, error) {
			return NewWithOptions(Options{
				Logger:       logger,
				Registry:     options.Registry,
				Debounce:     options.Debounce,
				MaxWatches:   options.MaxWatches,
				ErrorHandler: reconciler.handleWatcherError,
			})
		}
	}
	return reconciler
}

// UpdateWatchDirs replaces the watch set with dirs. Removals never fail the
// call; the first failed addition aborts it, leaving additions made earlier
// in the same call in place.
func (r *Reconciler) UpdateWatchDirs(dirs []string) error {
	if r == nil {
		return errors.New("reconciler is nil")
	}
	if !r.capabilities.FileWatch {
		return platform.ErrUnsupported
	}
	desired, err := fsutil.NormalizeDirs(dirs)
	if err != nil {
		return fmt.Errorf("normalize watch dirs: %w", err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.watcher == nil {
		created, err := r.factory()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		r.watcher = created
	}

	desiredSet := make(map[string]struct{}, len(desired))
	for _, dir := range desired {
		desiredSet[dir] = struct{}{}
	}

	for _, dir := range r.sortedWatchedLocked() {
		if _, keep := desiredSet[dir]; keep {
			continue
		}
		if err := r.watcher.Unwatch(dir); err != nil {
			r.reportUnwatchError(dir, err)
		}
		delete(r.watched, dir)
		r.registry.IncWatchRemoved()
		r.logger.Info("watch removed", map[string]string{"path": dir})
	}

	for _, dir := range desired {
		if _, ok := r.watched[dir]; ok {
			continue
		}
		if err := r.watcher.WatchRecursive(dir, r.dispatch); err != nil {
			r.registry.IncWatchFailure()
			r.logger.Error("watch failed", map[string]string{
				"path":  dir,
				"error": err.Error(),
			})
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		r.watched[dir] = struct{}{}
		r.registry.IncWatchAdded()
		r.logger.Info("watch added", map[string]string{"path": dir})
	}

	r.logger.Info("watch set updated", map[string]string{
		"count": strconv.Itoa(len(r.watched)),
	})
	return nil
}

// Watched returns the current watch set in sorted order.
func (r *Reconciler) Watched() []string {
	if r == nil {
		return nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.sortedWatchedLocked()
}

// Stats reports the OS watcher's counters. It is zero before the first
// update and for watchers that do not keep counters.
func (r *Reconciler) Stats() Metrics {
	if r == nil {
		return Metrics{}
	}
	r.mutex.Lock()
	current := r.watcher
	r.mutex.Unlock()
	reporter, ok := current.(interface{ Metrics() Metrics })
	if !ok {
		return Metrics{}
	}
	return reporter.Metrics()
}

// Capabilities reports the capabilities the reconciler was built with.
func (r *Reconciler) Capabilities() platform.Capabilities {
	if r == nil {
		return platform.Capabilities{}
	}
	return r.capabilities
}

// Close releases the OS watcher. Further updates fail with ErrClosed.
func (r *Reconciler) Close() error {
	if r == nil {
		return nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.watched = make(map[string]struct{})
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Close()
	r.watcher = nil
	return err
}

func (r *Reconciler) sortedWatchedLocked() []string {
	dirs := make([]string, 0, len(r.watched))
	for dir := range r.watched {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// dispatch runs on the watcher goroutine and must not touch the watch set.
func (r *Reconciler) dispatch(raw Event) {
	created, ok := CreatedEvent(raw)
	if !ok {
		return
	}
	r.registry.IncFileCreated()
	r.logger.Debug("file created", map[string]string{"path": raw.Path})
	if r.publisher != nil {
		r.publisher.Publish(created)
	}
}

func (r *Reconciler) reportUnwatchError(dir string, err error) {
	r.registry.IncUnwatchError()
	r.logger.Warn("unwatch failed", map[string]string{
		"path":  dir,
		"error": err.Error(),
	})
	if r.onUnwatchError != nil {
		r.onUnwatchError(dir, err)
	}
}

func (r *Reconciler) handleWatcherError(err error) {
	if r.publisher != nil {
		r.publisher.Publish(event.NewWatchErrorEvent("", err))
	}
}
