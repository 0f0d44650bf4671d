package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nascraft/internal/logging"

	"github.com/gorilla/websocket"
)

type LogsHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type logFilterMessage struct {
	Level string `json:"level"`
}

type levelFilter struct {
	mu    sync.RWMutex
	level logging.Level
}

func (f *levelFilter) Get() logging.Level {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.level
}

func (f *levelFilter) Set(level logging.Level) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

func (f *levelFilter) Allows(entry logging.LogEntry) bool {
	minLevel := f.Get()
	return minLevel == "" || logging.LevelAtLeast(entry.Level, minLevel)
}

func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}

	_, span := startWebSocketSpan(r, "/ws/logs")
	defer span.End()

	filter := &levelFilter{}
	if rawLevel := r.URL.Query().Get("level"); rawLevel != "" {
		if level, ok := logging.ParseLevel(rawLevel); ok {
			filter.Set(level)
		}
	}

	output, cancel := h.Logger.Subscribe()
	if output == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
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

	var snapshot []logging.LogEntry
	if buffer := h.Logger.Buffer(); buffer != nil {
		snapshot = buffer.List()
	}
	writer, err := startWSWriteLoop(wsStreamConfig[logging.LogEntry]{
		Conn:   conn,
		Output: output,
		PreWrite: func(conn *websocket.Conn) error {
			return writeLogSnapshot(conn, snapshot, filter)
		},
		BuildPayload: func(entry logging.LogEntry) (any, bool) {
			if !filter.Allows(entry) {
				return nil, false
			}
			return entry, true
		},
	})
	if err != nil {
		cancel()
		writeWSError(w, r, conn, h.Logger, wsError{
			Status:       http.StatusInternalServerError,
			Message:      "log stream unavailable",
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
		var payload logFilterMessage
		if err := json.Unmarshal(msg, &payload); err != nil {
			continue
		}
		level, ok := logging.ParseLevel(payload.Level)
		if !ok {
			filter.Set("")
			continue
		}
		filter.Set(level)
	}
}

func writeLogSnapshot(conn *websocket.Conn, entries []logging.LogEntry, filter *levelFilter) error {
	for _, entry := range entries {
		if !filter.Allows(entry) {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		if err := conn.WriteJSON(entry); err != nil {
			return err
		}
	}
	return nil
}
