package event

import "time"

const (
	EventTypeFileCreated = "file-created"
	EventTypeWatchError  = "watch_error"
)

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

// FileEvent is published for newly created files under a watched directory,
// and for watcher failures that callers may want to surface.
type FileEvent struct {
	EventType  string    `json:"type"`
	Path       string    `json:"path"`
	Operation  string    `json:"op,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"timestamp"`
}

func NewFileCreatedEvent(path string) FileEvent {
	return FileEvent{
		EventType:  EventTypeFileCreated,
		Path:       path,
		Operation:  "create",
		OccurredAt: time.Now().UTC(),
	}
}

func NewWatchErrorEvent(path string, err error) FileEvent {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return FileEvent{
		EventType:  EventTypeWatchError,
		Path:       path,
		Error:      message,
		OccurredAt: time.Now().UTC(),
	}
}

func (e FileEvent) Type() string {
	return e.EventType
}

func (e FileEvent) Timestamp() time.Time {
	return e.OccurredAt
}
