package watcher

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"nascraft/internal/logging"
)

const (
	DefaultDebounce   = 100 * time.Millisecond
	DefaultMaxWatches = 8192
)

var (
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
	ErrClosed             = errors.New("watcher is closed")
)

// New creates a Watcher with default options.
func New() (*Watcher, error) {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a Watcher with custom options.
func NewWithOptions(options Options) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), logging.LevelInfo, nil)
	}

	debounce := options.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	maxWatches := options.MaxWatches
	if maxWatches <= 0 {
		maxWatches = DefaultMaxWatches
	}

	instance := &Watcher{
		watcher:      watcher,
		roots:        make(map[string]*rootWatch),
		dirs:         make(map[string]int),
		debouncer:    newDebouncer(debounce),
		events:       make(chan fsnotify.Event, 64),
		errors:       make(chan error, 4),
		done:         make(chan struct{}),
		logger:       logger,
		registry:     options.Registry,
		maxWatches:   maxWatches,
		errorHandler: options.ErrorHandler,
	}

	instance.startForwarder(watcher)
	go instance.run()
	return instance, nil
}

// Close shuts down the watcher and stops event processing.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	if watcher.debouncer != nil {
		watcher.debouncer.stop()
		watcher.debouncer = nil
	}
	watcher.roots = make(map[string]*rootWatch)
	watcher.dirs = make(map[string]int)
	watcher.mutex.Unlock()

	close(watcher.done)
	if watcher.watcher == nil {
		return nil
	}
	return watcher.watcher.Close()
}

func (watcher *Watcher) run() {
	for {
		select {
		case event := <-watcher.events:
			watcher.handleEvent(event)
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case watcher.events <- event:
				case <-watcher.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				case <-watcher.done:
					return
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

// handleError reports OS watcher failures. Overflow and similar errors lose
// notifications but never stop the watcher.
func (watcher *Watcher) handleError(err error) {
	if err == nil {
		return
	}
	atomic.AddUint64(&watcher.errorCount, 1)
	watcher.registry.IncWatcherError()
	fields := map[string]string{"error": err.Error()}
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		fields["overflow"] = "true"
	}
	watcher.logWarn("watcher error", fields)

	watcher.mutex.Lock()
	handler := watcher.errorHandler
	watcher.mutex.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Warn(message, withWatcherFields(fields))
}

func (watcher *Watcher) logDebug(message, path string, activeCount int) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	fields := map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	}
	watcher.logger.Debug(message, withWatcherFields(fields))
}

func withWatcherFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+1)
	merged["component"] = "watcher"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	watcher.mutex.Lock()
	roots := len(watcher.roots)
	active := len(watcher.dirs)
	watcher.mutex.Unlock()
	return Metrics{
		Roots:           roots,
		ActiveWatches:   active,
		EventsDelivered: atomic.LoadUint64(&watcher.eventsDelivered),
		EventsCoalesced: atomic.LoadUint64(&watcher.eventsCoalesced),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
	}
}
