package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"nascraft/internal/app"
	"nascraft/internal/logfile"
	"nascraft/internal/logging"
	nasotel "nascraft/internal/otel"
	"nascraft/internal/server"
	"nascraft/internal/version"
)

func runServer(args []string) int {
	cfg, err := server.LoadConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cfg.ShowVersion {
		if version.Version == "" || version.Version == "dev" {
			fmt.Fprintf(os.Stdout, "%s dev\n", version.AppName)
		} else {
			fmt.Fprintf(os.Stdout, "%s version %s\n", version.AppName, version.Version)
		}
		return 0
	}

	logger := logging.NewLogger(logging.NewLogBuffer(logging.DefaultBufferSize), cfg.LogLevel)
	if cfg.Verbose {
		server.LogStartupFlags(logger, cfg)
	}
	server.EnsureDataDir(cfg, logger)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	shutdownTelemetry, err := nasotel.SetupSDK(runCtx, nasotel.SDKOptions{
		HTTPEndpoint:       cfg.OTelEndpoint,
		ServiceVersion:     version.Version,
		ResourceAttributes: nasotel.ParseResourceAttributes(os.Getenv("NASCRAFT_OTEL_RESOURCE_ATTRIBUTES")),
	})
	if err != nil {
		logger.Warn("telemetry setup failed", map[string]string{
			"endpoint": cfg.OTelEndpoint,
			"error":    err.Error(),
		})
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	result, err := app.Build(runCtx, app.BuildOptions{
		Logger:           logger,
		LogPath:          cfg.LogPath(),
		LogMaxBytes:      cfg.LogMaxBytes,
		LogLevel:         cfg.LogLevel,
		AuthToken:        cfg.AuthToken,
		AllowedOrigins:   cfg.AllowedOrigins,
		EventReplay:      cfg.EventReplay,
		EventClients:     cfg.EventClients,
		EventSendTimeout: cfg.EventSendTimeout,
		WatchDirs:        cfg.WatchDirs,
		WatchDebounce:    cfg.WatchDebounce,
		MaxWatches:       cfg.MaxWatches,
		DiscoveryMode:    cfg.DiscoveryMode,
		ServiceTypes:     cfg.ServiceTypes,
		BroadcastTargets: cfg.BroadcastTargets,
		ProbePort:        cfg.ProbePort,
	})
	if err != nil {
		var buildErr app.BuildError
		if errors.As(err, &buildErr) && buildErr.Stage == app.StageOpenLog {
			logger.Error("open log file failed", map[string]string{
				"path":  cfg.LogPath(),
				"error": buildErr.Err.Error(),
			})
			return 1
		}
		logger.Error("app build failed", map[string]string{
			"error": err.Error(),
		})
		return 1
	}
	logfile.InstallGlobal(result.LogFile, logfile.ZapLevel(cfg.LogLevel))
	server.LogVersionInfo(logger)

	shutdown := newShutdownCoordinator(logger)
	if settingsWatcher := watchSettingsFile(cfg, result.Reconciler, logger); settingsWatcher != nil {
		shutdown.AddCloser("settings watcher", settingsWatcher.Close)
	}
	shutdown.AddCloser("services", result.Close)
	shutdown.Add("telemetry", shutdownTelemetry)

	listener, err := listenOn(cfg.ListenAddr())
	if err != nil {
		logger.Error("api listen failed", map[string]string{
			"addr":  cfg.ListenAddr(),
			"error": err.Error(),
		})
		_ = shutdown.Run(context.Background())
		return 1
	}
	httpServer := newHTTPServer(result.Handler)
	logger.Info("nascraft api listening", map[string]string{
		"addr":    listener.Addr().String(),
		"version": version.Version,
	})

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopSignals := watchShutdownSignals(logger, cancelRun, signalCh)
	defer stopSignals()

	notifySystemd(logger, daemon.SdNotifyReady)

	runner := &ServerRunner{
		Logger:          logger,
		ShutdownTimeout: httpServerShutdownTimeout,
	}
	serveErr := runner.Run(runCtx, ManagedServer{
		Name: "api",
		Serve: func() error {
			return httpServer.Serve(listener)
		},
		Shutdown: httpServer.Shutdown,
	})

	notifySystemd(logger, daemon.SdNotifyStopping)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpServerShutdownTimeout)
	defer cancelShutdown()
	if err := shutdown.Run(shutdownCtx); err != nil {
		return 1
	}
	if serveErr != nil {
		return 1
	}
	logger.Info("nascraft stopped", nil)
	return 0
}
