package main

import (
	"context"
	"os"
	"sync"

	"nascraft/internal/logging"
)

// watchShutdownSignals cancels the run on the first signal from signalCh.
// Later signals are logged once and otherwise ignored so shutdown can finish.
// The returned function stops the watch.
func watchShutdownSignals(logger *logging.Logger, cancel context.CancelFunc, signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}

	done := make(chan struct{})
	var stopOnce sync.Once
	go func() {
		received := 0
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				received++
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				switch received {
				case 1:
					if logger != nil {
						logger.Info("shutdown signal received", fields)
					}
					if cancel != nil {
						cancel()
					}
				case 2:
					if logger != nil {
						logger.Info("shutdown already in progress; ignoring signal", fields)
					}
				}
			}
		}
	}()

	return func() {
		stopOnce.Do(func() { close(done) })
	}
}
