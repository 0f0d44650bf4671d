package event

import (
	"sync"
	"testing"
	"time"
)

// MockBus records published file events and forwards them to subscribers
// synchronously, dropping when a subscriber buffer is full.
type MockBus[T Event] struct {
	mu          sync.Mutex
	published   []T
	subscribers []chan T
}

func NewMockBus[T Event]() *MockBus[T] {
	return &MockBus[T]{}
}

func (m *MockBus[T]) Publish(event T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	for _, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a buffered channel of every later event.
func (m *MockBus[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 16)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, existing := range m.subscribers {
				if existing == ch {
					m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// Events returns a copy of everything published so far.
func (m *MockBus[T]) Events() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.published...)
}

// ReceiveWithTimeout waits for a single event or fails the test.
func ReceiveWithTimeout[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return value
	case <-time.After(timeout):
		t.Fatalf("no event after %s", timeout)
	}
	var zero T
	return zero
}
