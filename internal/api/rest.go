package api

import (
	"context"
	"time"

	"nascraft/internal/discovery"
	"nascraft/internal/logging"
	"nascraft/internal/metrics"
	"nascraft/internal/platform"
	"nascraft/internal/relay"
	"nascraft/internal/watcher"
)

// Discoverer runs service discovery passes.
type Discoverer interface {
	Discover(ctx context.Context, request discovery.Request) ([]discovery.Server, error)
	Browse(ctx context.Context, serviceType string, timeout time.Duration) ([]discovery.Server, error)
	Strategy() string
}

// WatchDirs reconciles the watched directory set.
type WatchDirs interface {
	UpdateWatchDirs(dirs []string) error
	Watched() []string
	Stats() watcher.Metrics
}

// LogStore is the application log file.
type LogStore interface {
	Path() string
	MaxBytes() int64
	ReadTail(maxBytes int64) (string, error)
	AppendWebLog(level, message string) error
}

// Fetcher relays HTTP requests on behalf of the UI.
type Fetcher interface {
	Fetch(ctx context.Context, request relay.Request) (relay.Response, error)
}

type RestHandler struct {
	Logger       *logging.Logger
	Discovery    Discoverer
	WatchDirs    WatchDirs
	LogFile      LogStore
	Relay        Fetcher
	Registry     *metrics.Registry
	Capabilities platform.Capabilities
	StartedAt    time.Time
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

type discoverRequest struct {
	TimeoutMS      int64    `json:"timeout_ms"`
	BroadcastAddrs []string `json:"broadcast_addrs"`
}

type watchDirsPayload struct {
	Dirs []string `json:"dirs"`
}

type logInfoResponse struct {
	LogFilePath string `json:"log_file_path"`
	MaxBytes    int64  `json:"max_bytes"`
}

type webLogRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type statusResponse struct {
	App               string                `json:"app"`
	Version           string                `json:"version"`
	Major             int                   `json:"major"`
	Minor             int                   `json:"minor"`
	Patch             int                   `json:"patch"`
	Built             string                `json:"built"`
	GitCommit         string                `json:"git_commit"`
	GoVersion         string                `json:"go_version"`
	ServerTime        time.Time             `json:"server_time"`
	StartedAt         time.Time             `json:"started_at"`
	Capabilities      platform.Capabilities `json:"capabilities"`
	DiscoveryStrategy string                `json:"discovery_strategy"`
	WatchedDirs       int                   `json:"watched_dirs"`
	ActiveWatches     int                   `json:"active_watches"`
	WatcherErrors     uint64                `json:"watcher_errors"`
	LogFilePath       string                `json:"log_file_path,omitempty"`
}
