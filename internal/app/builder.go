package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"nascraft/internal/api"
	"nascraft/internal/discovery"
	"nascraft/internal/event"
	"nascraft/internal/logfile"
	"nascraft/internal/logging"
	"nascraft/internal/metrics"
	"nascraft/internal/platform"
	"nascraft/internal/relay"
	"nascraft/internal/watcher"
)

type BuildOptions struct {
	Logger      *logging.Logger
	LogPath     string
	LogMaxBytes int64
	LogLevel    logging.Level
	// Capabilities defaults to the running host.
	Capabilities     *platform.Capabilities
	Registry         *metrics.Registry
	AuthToken        string
	AllowedOrigins   []string
	EventReplay      int
	// EventClients caps /ws/events subscribers. Zero means no cap.
	EventClients     int
	// EventSendTimeout bounds how long a full subscriber may stall the bus
	// before it is evicted. Zero drops events for that subscriber instead.
	EventSendTimeout time.Duration
	WatchDirs        []string
	WatchDebounce    time.Duration
	MaxWatches       int
	DiscoveryMode    string
	ServiceTypes     []string
	BroadcastTargets []string
	ProbePort        int
	NewBrowser       func() (discovery.Browser, error)
	Now              func() time.Time
}

type BuildResult struct {
	Logger       *logging.Logger
	AccessLog    *zap.Logger
	LogFile      *logfile.File
	Registry     *metrics.Registry
	Capabilities platform.Capabilities
	Events       *event.Bus[event.FileEvent]
	Reconciler   *watcher.Reconciler
	Discovery    *discovery.Engine
	Relay        *relay.Client
	Handler      http.Handler
}

type BuildError struct {
	Stage string
	Err   error
}

func (e BuildError) Error() string {
	if e.Err == nil {
		return e.Stage
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e BuildError) Unwrap() error {
	return e.Err
}

const (
	StageOpenLog   = "open_log"
	StageDiscovery = "discovery"
)

const eventBusName = "file_events"

// Build wires the log file, event bus, watch reconciler, discovery engine and
// HTTP relay behind the API router. The bus closes when ctx is done.
func Build(ctx context.Context, options BuildOptions) (*BuildResult, error) {
	if strings.TrimSpace(options.LogPath) == "" {
		return nil, errors.New("log path is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, options.LogLevel, nil)
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	capabilities := platform.Detect()
	if options.Capabilities != nil {
		capabilities = *options.Capabilities
	}

	logFile, err := logfile.Open(logfile.Options{
		Path:     options.LogPath,
		MaxBytes: options.LogMaxBytes,
		Registry: registry,
		Now:      options.Now,
	})
	if err != nil {
		return nil, BuildError{Stage: StageOpenLog, Err: err}
	}
	logger.InstallSink(logFile)
	accessLog := logFile.NewZapLogger(logfile.ZapLevel(options.LogLevel)).Named("http")

	historySize := options.EventReplay
	if historySize == 0 {
		historySize = 20
	}
	if historySize < 0 {
		historySize = 0
	}
	bus := event.NewBus[event.FileEvent](ctx, event.BusOptions{
		Name:           eventBusName,
		HistorySize:    historySize,
		MaxSubscribers: options.EventClients,
		SendTimeout:    options.EventSendTimeout,
		Registry:       registry,
		Logger:         logger,
	})

	reconciler := watcher.NewReconciler(watcher.ReconcilerOptions{
		Capabilities: capabilities,
		Publisher:    bus,
		Logger:       logger,
		Registry:     registry,
		Debounce:     options.WatchDebounce,
		MaxWatches:   options.MaxWatches,
	})
	if len(options.WatchDirs) > 0 {
		if err := reconciler.UpdateWatchDirs(options.WatchDirs); err != nil {
			logger.Warn("initial watch dirs failed", map[string]string{
				"dirs":  strings.Join(options.WatchDirs, ","),
				"error": err.Error(),
			})
		}
	}

	engine, err := discovery.NewEngine(discovery.EngineOptions{
		Capabilities:     capabilities,
		Mode:             options.DiscoveryMode,
		ServiceTypes:     options.ServiceTypes,
		BroadcastTargets: options.BroadcastTargets,
		ProbePort:        options.ProbePort,
		NewBrowser:       options.NewBrowser,
		Logger:           logger,
		Registry:         registry,
	})
	if err != nil {
		_ = reconciler.Close()
		bus.Close()
		return nil, BuildError{Stage: StageDiscovery, Err: err}
	}

	relayClient := relay.NewClient(relay.Options{Logger: logger})

	handler := api.NewRouter(api.Options{
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
		Logger:         logger,
		AccessLog:      accessLog,
		Events:         bus,
		EventReplay:    options.EventReplay,
		Discovery:      engine,
		WatchDirs:      reconciler,
		LogFile:        logFile,
		Relay:          relayClient,
		Registry:       registry,
		Capabilities:   capabilities,
	})

	logger.Info("services ready", map[string]string{
		"log_file":       logFile.Path(),
		"discovery_mode": engine.Strategy(),
		"file_watch":     strconv.FormatBool(capabilities.FileWatch),
	})

	return &BuildResult{
		Logger:       logger,
		AccessLog:    accessLog,
		LogFile:      logFile,
		Registry:     registry,
		Capabilities: capabilities,
		Events:       bus,
		Reconciler:   reconciler,
		Discovery:    engine,
		Relay:        relayClient,
		Handler:      handler,
	}, nil
}

// Close stops the watchers and the event bus.
func (r *BuildResult) Close() error {
	if r == nil {
		return nil
	}
	var err error
	if r.Reconciler != nil {
		err = r.Reconciler.Close()
	}
	if r.Events != nil {
		r.Events.Close()
	}
	if r.AccessLog != nil {
		_ = r.AccessLog.Sync()
	}
	return err
}
