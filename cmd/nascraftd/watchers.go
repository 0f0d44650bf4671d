package main

import (
	"strings"

	"nascraft/internal/logging"
	"nascraft/internal/server"
)

// watchDirUpdater is satisfied by *watcher.Reconciler.
type watchDirUpdater interface {
	UpdateWatchDirs(dirs []string) error
}

// watchSettingsFile re-applies the watch dirs from the settings file whenever
// it changes. Dirs pinned by an environment variable or flag win over the
// file, so reloads are skipped for them.
func watchSettingsFile(cfg server.Config, updater watchDirUpdater, logger *logging.Logger) *server.SettingsWatcher {
	if updater == nil {
		return nil
	}
	if source := cfg.Source("watch-dir"); source == "env" || source == "flag" {
		if logger != nil {
			logger.Info("settings reload disabled for watch dirs", map[string]string{
				"source": source,
			})
		}
		return nil
	}

	settingsWatcher, err := server.WatchSettingsFile(server.SettingsWatcherOptions{
		Path:     cfg.SettingsFile,
		Logger:   logger,
		OnChange: applyWatchSettings(updater, logger),
	})
	if err != nil {
		if logger != nil {
			logger.Warn("settings watcher unavailable", map[string]string{
				"path":  cfg.SettingsFile,
				"error": err.Error(),
			})
		}
		return nil
	}
	return settingsWatcher
}

func applyWatchSettings(updater watchDirUpdater, logger *logging.Logger) func(server.Settings) {
	return func(settings server.Settings) {
		dirs := settings.Watch.Dirs
		if err := updater.UpdateWatchDirs(dirs); err != nil && logger != nil {
			logger.Warn("apply watch dirs failed", map[string]string{
				"dirs":  strings.Join(dirs, ","),
				"error": err.Error(),
			})
		}
	}
}
