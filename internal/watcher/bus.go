package watcher

import (
	"github.com/fsnotify/fsnotify"

	"nascraft/internal/event"
)

// Publisher receives file notifications. *event.Bus[event.FileEvent] and
// *event.MockBus[event.FileEvent] both satisfy it.
type Publisher interface {
	Publish(event.FileEvent)
}

// CreatedEvent converts a raw watcher event into a file-created notification.
// It reports false for events that do not include a creation.
func CreatedEvent(raw Event) (event.FileEvent, bool) {
	if !raw.Op.Has(fsnotify.Create) {
		return event.FileEvent{}, false
	}
	created := event.NewFileCreatedEvent(raw.Path)
	if !raw.Timestamp.IsZero() {
		created.OccurredAt = raw.Timestamp
	}
	return created, true
}
