package api

import (
	"net/http"
	"time"

	"nascraft/internal/event"
	"nascraft/internal/logging"
	"nascraft/internal/metrics"
	nasotel "nascraft/internal/otel"
	"nascraft/internal/platform"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultEventReplay = 20

type Options struct {
	AuthToken      string
	AllowedOrigins []string
	Logger         *logging.Logger
	AccessLog      *zap.Logger
	Events         *event.Bus[event.FileEvent]
	// EventReplay is the number of recent events replayed to new /ws/events
	// clients. Negative disables replay.
	EventReplay  int
	Discovery    Discoverer
	WatchDirs    WatchDirs
	LogFile      LogStore
	Relay        Fetcher
	Registry     *metrics.Registry
	Capabilities platform.Capabilities
	StartedAt    time.Time
	// Tracer receives request spans. Nil uses the global provider.
	Tracer trace.Tracer
}

// NewRouter builds the loopback command API.
func NewRouter(options Options) http.Handler {
	token := options.AuthToken
	replay := options.EventReplay
	if replay == 0 {
		replay = defaultEventReplay
	}
	startedAt := options.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	rest := &RestHandler{
		Logger:       options.Logger,
		Discovery:    options.Discovery,
		WatchDirs:    options.WatchDirs,
		LogFile:      options.LogFile,
		Relay:        options.Relay,
		Registry:     options.Registry,
		Capabilities: options.Capabilities,
		StartedAt:    startedAt,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(nasotel.Middleware(options.Tracer))
	r.Use(accessLog(options.AccessLog))

	r.NotFound(restHandler("", func(w http.ResponseWriter, r *http.Request) *apiError {
		return &apiError{Status: http.StatusNotFound, Message: "not found"}
	}))
	r.MethodNotAllowed(restHandler("", func(w http.ResponseWriter, r *http.Request) *apiError {
		return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}))

	r.Handle("/ws/events", securityHeadersMiddleware(cacheControlNoStore, &EventsHandler{
		Bus:            options.Events,
		Logger:         options.Logger,
		AuthToken:      token,
		AllowedOrigins: options.AllowedOrigins,
		Replay:         replay,
	}))
	r.Handle("/ws/logs", securityHeadersMiddleware(cacheControlNoStore, &LogsHandler{
		Logger:         options.Logger,
		AuthToken:      token,
		AllowedOrigins: options.AllowedOrigins,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", restHandler(token, rest.handleStatus))
		r.Post("/discovery", restHandler(token, rest.handleDiscover))
		r.Get("/discovery/mdns", restHandler(token, rest.handleBrowse))
		r.Get("/watch-dirs", restHandler(token, rest.handleGetWatchDirs))
		r.Put("/watch-dirs", restHandler(token, rest.handleUpdateWatchDirs))
		r.Get("/logs", restHandler(token, rest.handleReadLog))
		r.Get("/logs/info", restHandler(token, rest.handleLogInfo))
		r.Post("/logs/web", restHandler(token, rest.handleWebLog))
		r.Post("/fetch", restHandler(token, rest.handleFetch))
	})
	r.Get("/metrics", restHandler(token, rest.handleMetrics))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControlNoCache)
		if token != "" {
			w.Header().Set("X-Nascraft-Auth", "required")
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("nascraft ok\n"))
	})

	return r
}
