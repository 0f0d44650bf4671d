package main

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"nascraft/internal/logging"
)

// notifySystemd reports a state change to the service manager. Outside a
// systemd unit NOTIFY_SOCKET is unset and this does nothing.
func notifySystemd(logger *logging.Logger, state string) {
	sent, err := sdNotify(false, state)
	if err != nil {
		logger.Warn("systemd notify failed", map[string]string{
			"state": state,
			"error": err.Error(),
		})
		return
	}
	if sent {
		logger.Debug("systemd notified", map[string]string{
			"state": state,
		})
	}
}

var sdNotify = daemon.SdNotify
