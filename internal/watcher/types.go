package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nascraft/internal/logging"
	"nascraft/internal/metrics"
)

// Event represents a single filesystem change. Op may combine several
// operations when notifications for the same path were coalesced.
type Event struct {
	Path      string
	Op        fsnotify.Op
	Timestamp time.Time
}

// DirWatcher watches directory trees. Watcher is the fsnotify implementation.
type DirWatcher interface {
	WatchRecursive(root string, callback func(Event)) error
	Unwatch(root string) error
	Close() error
}

// Options controls watcher behavior.
type Options struct {
	Logger       *logging.Logger
	Registry     *metrics.Registry
	Debounce     time.Duration
	MaxWatches   int
	ErrorHandler func(error)
}

// Metrics is a point-in-time view of watcher counters.
type Metrics struct {
	Roots           int
	ActiveWatches   int
	EventsDelivered uint64
	EventsCoalesced uint64
	Errors          uint64
}

// Watcher is the concrete fsnotify-backed implementation.
type Watcher struct {
	watcher         *fsnotify.Watcher
	mutex           sync.Mutex
	roots           map[string]*rootWatch
	dirs            map[string]int
	debouncer       *debouncer
	events          chan fsnotify.Event
	errors          chan error
	done            chan struct{}
	closed          bool
	logger          *logging.Logger
	registry        *metrics.Registry
	maxWatches      int
	errorHandler    func(error)
	eventsDelivered uint64
	eventsCoalesced uint64
	errorCount      uint64
}

type rootWatch struct {
	callback func(Event)
	dirs     map[string]struct{}
}
