package server

import (
	"fmt"
	"os"
	"strings"

	"nascraft/internal/logging"
	"nascraft/internal/version"
)

func LogStartupFlags(logger *logging.Logger, cfg Config) {
	if logger == nil || cfg.Sources == nil {
		return
	}
	var flags []string
	if cfg.Sources["host"] == sourceFlag {
		flags = append(flags, formatStringFlag("--host", cfg.Host))
	}
	if cfg.Sources["port"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--port %d", cfg.Port))
	}
	if cfg.Sources["token"] == sourceFlag {
		flags = append(flags, formatTokenFlag(cfg.AuthToken))
	}
	if cfg.Sources["allowed-origins"] == sourceFlag {
		flags = append(flags, formatStringFlag("--allowed-origins", strings.Join(cfg.AllowedOrigins, ",")))
	}
	if cfg.Sources["data-dir"] == sourceFlag {
		flags = append(flags, formatStringFlag("--data-dir", cfg.DataDir))
	}
	if cfg.Sources["config"] == sourceFlag {
		flags = append(flags, formatStringFlag("--config", cfg.SettingsFile))
	}
	if cfg.Sources["app-name"] == sourceFlag {
		flags = append(flags, formatStringFlag("--app-name", cfg.AppName))
	}
	if cfg.Sources["log-max-bytes"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--log-max-bytes %d", cfg.LogMaxBytes))
	}
	if cfg.Sources["log-level"] == sourceFlag {
		flags = append(flags, formatStringFlag("--log-level", string(cfg.LogLevel)))
	}
	if cfg.Sources["watch-dir"] == sourceFlag {
		for _, dir := range cfg.WatchDirs {
			flags = append(flags, formatStringFlag("--watch-dir", dir))
		}
	}
	if cfg.Sources["watch-debounce"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--watch-debounce %s", cfg.WatchDebounce))
	}
	if cfg.Sources["max-watches"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--max-watches %d", cfg.MaxWatches))
	}
	if cfg.Sources["discovery-mode"] == sourceFlag {
		flags = append(flags, formatStringFlag("--discovery-mode", cfg.DiscoveryMode))
	}
	if cfg.Sources["service-type"] == sourceFlag {
		for _, serviceType := range cfg.ServiceTypes {
			flags = append(flags, formatStringFlag("--service-type", serviceType))
		}
	}
	if cfg.Sources["broadcast-target"] == sourceFlag {
		for _, target := range cfg.BroadcastTargets {
			flags = append(flags, formatStringFlag("--broadcast-target", target))
		}
	}
	if cfg.Sources["probe-port"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--probe-port %d", cfg.ProbePort))
	}
	if cfg.Sources["event-replay"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--event-replay %d", cfg.EventReplay))
	}
	if cfg.Sources["event-clients"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--event-clients %d", cfg.EventClients))
	}
	if cfg.Sources["event-send-timeout"] == sourceFlag {
		flags = append(flags, fmt.Sprintf("--event-send-timeout %s", cfg.EventSendTimeout))
	}
	if cfg.Sources["otel-endpoint"] == sourceFlag {
		flags = append(flags, formatStringFlag("--otel-endpoint", cfg.OTelEndpoint))
	}
	if cfg.Sources["verbose"] == sourceFlag {
		flags = append(flags, formatBoolFlag("--verbose", cfg.Verbose))
	}
	if cfg.Sources["quiet"] == sourceFlag {
		flags = append(flags, formatBoolFlag("--quiet", cfg.Quiet))
	}

	if len(flags) == 0 {
		return
	}
	logger.Debug("starting with flags", map[string]string{
		"flags": strings.Join(flags, " "),
	})
}

func LogVersionInfo(logger *logging.Logger) {
	if logger == nil {
		return
	}
	info := version.GetVersionInfo()
	label := formatVersionInfo(info)
	message := fmt.Sprintf("%s version %s", version.AppName, label)
	var details []string
	if info.Built != "" {
		details = append(details, fmt.Sprintf("built %s", info.Built))
	}
	if info.GitCommit != "" {
		details = append(details, fmt.Sprintf("commit %s", info.GitCommit))
	}
	if len(details) > 0 {
		message = fmt.Sprintf("%s (%s)", message, strings.Join(details, ", "))
	}
	logger.Info(message, nil)
}

// EnsureDataDir creates the data directory. Failure is logged, not fatal;
// the log file reports its own errors on first append.
func EnsureDataDir(cfg Config, logger *logging.Logger) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil && logger != nil {
		logger.Warn("create data dir failed", map[string]string{
			"path":  cfg.DataDir,
			"error": err.Error(),
		})
	}
}

func formatVersionInfo(info version.VersionInfo) string {
	if strings.TrimSpace(info.Version) != "" {
		return info.Version
	}
	return fmt.Sprintf("%d.%d.%d", info.Major, info.Minor, info.Patch)
}

func formatBoolFlag(name string, value bool) string {
	if value {
		return name
	}
	return fmt.Sprintf("%s=%t", name, value)
}

func formatStringFlag(name, value string) string {
	if strings.TrimSpace(value) == "" {
		return fmt.Sprintf("%s=\"\"", name)
	}
	return fmt.Sprintf("%s %s", name, value)
}

func formatTokenFlag(token string) string {
	if strings.TrimSpace(token) == "" {
		return "--token=\"\""
	}
	return "--token [set]"
}
