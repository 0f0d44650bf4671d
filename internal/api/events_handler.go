package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"nascraft/internal/event"
	"nascraft/internal/logging"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/codes"
)

// EventsHandler streams file-created and watch_error events. Clients may
// narrow the stream by sending {"subscribe": [...]}.
type EventsHandler struct {
	Bus            *event.Bus[event.FileEvent]
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
	// Replay is the number of recent events sent on connect.
	Replay int
}

type eventSubscribeMessage struct {
	Subscribe []string `json:"subscribe"`
}

type eventPayload struct {
	Type      string    `json:"type"`
	Path      string    `json:"path"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Replay    bool      `json:"replay,omitempty"`
}

type eventFilter struct {
	mutex sync.RWMutex
	types map[string]struct{}
}

func newEventFilter(allowed map[string]struct{}) *eventFilter {
	types := make(map[string]struct{}, len(allowed))
	for eventType := range allowed {
		types[eventType] = struct{}{}
	}
	return &eventFilter{types: types}
}

func (filter *eventFilter) Allows(eventType string) bool {
	if filter == nil {
		return true
	}
	filter.mutex.RLock()
	defer filter.mutex.RUnlock()
	if len(filter.types) == 0 {
		return false
	}
	_, ok := filter.types[eventType]
	return ok
}

func (filter *eventFilter) Set(subscriptions []string, allowed map[string]struct{}) {
	if filter == nil {
		return
	}
	types := make(map[string]struct{})
	for _, eventType := range subscriptions {
		if _, ok := allowed[eventType]; ok {
			types[eventType] = struct{}{}
		}
	}
	filter.mutex.Lock()
	filter.types = types
	filter.mutex.Unlock()
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}

	_, span := startWebSocketSpan(r, "/ws/events")
	defer span.End()

	allowed := map[string]struct{}{
		event.EventTypeFileCreated: {},
		event.EventTypeWatchError:  {},
	}
	filter := newEventFilter(allowed)

	var (
		events <-chan event.FileEvent
		cancel = func() {}
	)
	if h.Bus != nil {
		subscribed, unsubscribe, err := h.Bus.Subscribe(event.EventTypeFileCreated, event.EventTypeWatchError)
		if err != nil {
			message := "event stream unavailable"
			if errors.Is(err, event.ErrTooManySubscribers) {
				message = "too many event clients"
			}
			span.SetStatus(codes.Error, message)
			writeWSError(w, r, nil, h.Logger, wsError{
				Status:  http.StatusServiceUnavailable,
				Message: message,
				Err:     err,
			})
			return
		}
		events, cancel = subscribed, unsubscribe
	}

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		cancel()
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	defer conn.Close()

	if h.Bus == nil {
		span.SetStatus(codes.Error, "event bus unavailable")
		writeWSError(w, r, conn, h.Logger, wsError{
			Status:       http.StatusInternalServerError,
			Message:      "event bus unavailable",
			SendEnvelope: true,
		})
		return
	}

	var replay []event.FileEvent
	if h.Replay > 0 {
		replay = h.Bus.Recent(h.Replay)
	}

	writer, err := startWSWriteLoop(wsStreamConfig[event.FileEvent]{
		Conn:   conn,
		Output: events,
		PreWrite: func(conn *websocket.Conn) error {
			for _, item := range replay {
				if _, ok := allowed[item.Type()]; !ok {
					continue
				}
				payload := newEventPayload(item)
				payload.Replay = true
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
					return err
				}
				if err := conn.WriteJSON(payload); err != nil {
					return err
				}
			}
			return nil
		},
		BuildPayload: func(item event.FileEvent) (any, bool) {
			if !filter.Allows(item.Type()) {
				return nil, false
			}
			return newEventPayload(item), true
		},
	})
	if err != nil {
		cancel()
		writeWSError(w, r, conn, h.Logger, wsError{
			Status:       http.StatusInternalServerError,
			Message:      "event stream unavailable",
			Err:          err,
			SendEnvelope: true,
		})
		return
	}
	defer cancel()
	defer writer.Stop()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var payload eventSubscribeMessage
		if err := json.Unmarshal(msg, &payload); err != nil {
			continue
		}
		filter.Set(payload.Subscribe, allowed)
	}
}

func newEventPayload(item event.FileEvent) eventPayload {
	payload := eventPayload{
		Type:      item.Type(),
		Path:      item.Path,
		Error:     item.Error,
		Timestamp: item.Timestamp(),
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	return payload
}
