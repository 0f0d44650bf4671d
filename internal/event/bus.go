package event

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	logglobal "go.opentelemetry.io/otel/log/global"

	"nascraft/internal/buffer"
	"nascraft/internal/logging"
	"nascraft/internal/metrics"
)

const (
	defaultBufferSize = 128
	otelScope         = "nascraft/events"
)

var (
	ErrBusClosed          = errors.New("event bus is closed")
	ErrTooManySubscribers = errors.New("event bus subscriber limit reached")
)

type BusOptions struct {
	Name string
	// BufferSize is the per-subscriber channel capacity.
	BufferSize  int
	HistorySize int
	// MaxSubscribers caps concurrent subscriptions. Zero means no cap.
	MaxSubscribers int
	// SendTimeout is how long Publish waits on a subscriber whose buffer is
	// full. When it expires the subscriber is evicted and its channel closed.
	// Zero drops the event for that subscriber and keeps it subscribed.
	SendTimeout time.Duration
	Registry    *metrics.Registry
	Logger      *logging.Logger
	// OTelLogger receives one log record per published event. Nil uses the
	// global logger provider.
	OTelLogger otellog.Logger
}

// Bus fans typed events out to subscribers and keeps a short history for
// late joiners. Publish never blocks longer than SendTimeout per subscriber.
type Bus[T Event] struct {
	name     string
	options  BusOptions
	registry *metrics.Registry
	logger   *logging.Logger
	otel     otellog.Logger

	mu          sync.Mutex
	closed      bool
	nextID      uint64
	subscribers map[uint64]*subscriber[T]
	history     *buffer.Ring[T]
}

type subscriber[T Event] struct {
	types map[string]struct{}

	// mu serializes sends with close so a send never hits a closed channel.
	mu     sync.Mutex
	closed bool
	ch     chan T
}

func NewBus[T Event](ctx context.Context, options BusOptions) *Bus[T] {
	if options.Name == "" {
		options.Name = "event_bus"
	}
	if options.BufferSize <= 0 {
		options.BufferSize = defaultBufferSize
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	otelLogger := options.OTelLogger
	if otelLogger == nil {
		otelLogger = logglobal.GetLoggerProvider().Logger(otelScope)
	}
	bus := &Bus[T]{
		name:        options.Name,
		options:     options,
		registry:    registry,
		logger:      logger.With(map[string]string{"bus": options.Name}),
		otel:        otelLogger,
		subscribers: make(map[uint64]*subscriber[T]),
	}
	if options.HistorySize > 0 {
		bus.history = buffer.NewRing[T](options.HistorySize)
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			bus.Close()
		}()
	}
	return bus
}

// Subscribe returns a channel receiving events of the given types, or every
// event when no type is given. The channel is closed by cancel, by Close, or
// when the subscriber is evicted for falling behind.
func (b *Bus[T]) Subscribe(eventTypes ...string) (<-chan T, func(), error) {
	sub := &subscriber[T]{ch: make(chan T, b.options.BufferSize)}
	for _, eventType := range eventTypes {
		if eventType == "" {
			continue
		}
		if sub.types == nil {
			sub.types = make(map[string]struct{}, len(eventTypes))
		}
		sub.types[eventType] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrBusClosed
	}
	if b.options.MaxSubscribers > 0 && len(b.subscribers) >= b.options.MaxSubscribers {
		b.mu.Unlock()
		return nil, nil, ErrTooManySubscribers
	}
	b.nextID++
	id := b.nextID
	b.subscribers[id] = sub
	b.mu.Unlock()
	b.reportSubscribers()

	return sub.ch, func() { b.unsubscribe(id) }, nil
}

func (b *Bus[T]) Publish(event T) {
	eventType := event.Type()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.history != nil {
		b.history.Add(event)
	}
	targets := make(map[uint64]*subscriber[T], len(b.subscribers))
	for id, sub := range b.subscribers {
		if sub.wants(eventType) {
			targets[id] = sub
		}
	}
	b.mu.Unlock()

	b.registry.IncEventPublished(b.name, eventType)
	b.emitOTel(event)

	for id, sub := range targets {
		if b.deliver(sub, event) {
			continue
		}
		b.registry.IncEventDropped(b.name, eventType)
		if b.options.SendTimeout > 0 {
			b.logger.Warn("evicting slow subscriber", map[string]string{
				"event_type":      eventType,
				"send_timeout_ms": strconv.FormatInt(b.options.SendTimeout.Milliseconds(), 10),
			})
			b.registry.IncEventEviction()
			b.unsubscribe(id)
		}
	}
}

// Recent returns up to count of the newest events, oldest first. A count of
// zero or less returns the whole history.
func (b *Bus[T]) Recent(count int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		return nil
	}
	return b.history.Last(count)
}

func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subscribers := b.subscribers
	b.subscribers = make(map[uint64]*subscriber[T])
	b.mu.Unlock()

	for _, sub := range subscribers {
		sub.close()
	}
	b.reportSubscribers()
}

func (b *Bus[T]) deliver(sub *subscriber[T], event T) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return true
	}
	select {
	case sub.ch <- event:
		return true
	default:
	}
	if b.options.SendTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(b.options.SendTimeout)
	defer timer.Stop()
	select {
	case sub.ch <- event:
		return true
	case <-timer.C:
		return false
	}
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	sub.close()
	b.reportSubscribers()
}

func (b *Bus[T]) reportSubscribers() {
	b.mu.Lock()
	filtered, unfiltered := 0, 0
	for _, sub := range b.subscribers {
		if sub.types == nil {
			unfiltered++
		} else {
			filtered++
		}
	}
	b.mu.Unlock()
	b.registry.SetEventSubscriberCounts(b.name, filtered, unfiltered)
}

func (s *subscriber[T]) wants(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
