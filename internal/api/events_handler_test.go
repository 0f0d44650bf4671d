package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nascraft/internal/event"

	"github.com/gorilla/websocket"
)

func startTestServer(t *testing.T, handler http.Handler) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping websocket test (listener unavailable): %v", err)
	}
	server := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	server.Start()
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newFileBus(t *testing.T, history int) *event.Bus[event.FileEvent] {
	t.Helper()
	bus := event.NewBus[event.FileEvent](context.Background(), event.BusOptions{
		Name:        "file_events",
		HistorySize: history,
	})
	t.Cleanup(bus.Close)
	return bus
}

func waitForSubscribers(t *testing.T, bus *event.Bus[event.FileEvent], count int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() < count {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers", count)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventsWebSocketStream(t *testing.T) {
	bus := newFileBus(t, 0)
	wsURL := startTestServer(t, &EventsHandler{Bus: bus}) + "/ws/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, bus, 1)

	bus.Publish(event.NewFileCreatedEvent("/srv/share/photo.jpg"))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var payload eventPayload
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	if payload.Type != event.EventTypeFileCreated || payload.Path != "/srv/share/photo.jpg" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestEventsWebSocketSubscribeFilter(t *testing.T) {
	bus := newFileBus(t, 0)
	wsURL := startTestServer(t, &EventsHandler{Bus: bus}) + "/ws/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, bus, 1)

	if err := conn.WriteJSON(eventSubscribeMessage{Subscribe: []string{event.EventTypeWatchError}}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	bus.Publish(event.NewFileCreatedEvent("/srv/skipped"))
	bus.Publish(event.NewWatchErrorEvent("", errors.New("event queue overflow")))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var payload eventPayload
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	if payload.Type != event.EventTypeWatchError || payload.Error != "event queue overflow" {
		t.Fatalf("expected filtered watch_error, got %#v", payload)
	}
}

func TestEventsWebSocketReplaysRecentEvents(t *testing.T) {
	bus := newFileBus(t, 4)
	bus.Publish(event.NewFileCreatedEvent("/srv/a"))
	bus.Publish(event.NewFileCreatedEvent("/srv/b"))
	wsURL := startTestServer(t, &EventsHandler{Bus: bus, Replay: 1}) + "/ws/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var payload eventPayload
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if !payload.Replay || payload.Path != "/srv/b" {
		t.Fatalf("expected replay of the latest event, got %#v", payload)
	}
}

func TestEventsWebSocketAuth(t *testing.T) {
	bus := newFileBus(t, 0)
	wsURL := startTestServer(t, &EventsHandler{Bus: bus, AuthToken: "secret"}) + "/ws/events"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected unauthorized websocket dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=secret", nil)
	if err != nil {
		t.Fatalf("dial websocket with token: %v", err)
	}
	conn.Close()
}

func TestEventsWebSocketBusUnavailable(t *testing.T) {
	wsURL := startTestServer(t, &EventsHandler{}) + "/ws/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var payload wsErrorPayload
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read error payload: %v", err)
	}
	if payload.Type != "error" || payload.Message != "event bus unavailable" {
		t.Fatalf("unexpected error payload %#v", payload)
	}

	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.CloseInternalServerErr {
		t.Fatalf("expected close code %d, got %d", websocket.CloseInternalServerErr, closeErr.Code)
	}
}

func TestEventsWebSocketThroughRouter(t *testing.T) {
	bus := newFileBus(t, 0)
	wsURL := startTestServer(t, NewRouter(Options{Events: bus})) + "/ws/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket through router: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, bus, 1)

	bus.Publish(event.NewFileCreatedEvent("/srv/routed"))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var payload eventPayload
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	if payload.Path != "/srv/routed" {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestEventsWebSocketRejectsClientsOverLimit(t *testing.T) {
	bus := event.NewBus[event.FileEvent](context.Background(), event.BusOptions{
		Name:           "file_events",
		MaxSubscribers: 1,
	})
	t.Cleanup(bus.Close)
	wsURL := startTestServer(t, &EventsHandler{Bus: bus}) + "/ws/events"

	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial first client: %v", err)
	}
	defer first.Close()
	waitForSubscribers(t, bus, 1)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected second client to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", resp)
	}
}

func TestEventsWebSocketClosesWhenStreamEnds(t *testing.T) {
	bus := newFileBus(t, 0)
	wsURL := startTestServer(t, &EventsHandler{Bus: bus}) + "/ws/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, bus, 1)

	bus.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.CloseTryAgainLater {
		t.Fatalf("expected close code %d, got %d", websocket.CloseTryAgainLater, closeErr.Code)
	}
}
