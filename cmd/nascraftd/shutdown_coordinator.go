package main

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"nascraft/internal/logging"
)

type shutdownStep struct {
	name string
	stop func(context.Context) error
}

// shutdownCoordinator stops components in registration order exactly once.
// A failing step does not prevent later steps from running.
type shutdownCoordinator struct {
	logger *logging.Logger
	mu     sync.Mutex
	once   sync.Once
	steps  []shutdownStep
	err    error
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{logger: logger}
}

func (c *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if c == nil || stop == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, shutdownStep{name: name, stop: stop})
}

// AddCloser registers a step for a component that only knows how to Close.
func (c *shutdownCoordinator) AddCloser(name string, close func() error) {
	if close == nil {
		return
	}
	c.Add(name, func(context.Context) error {
		return close()
	})
}

func (c *shutdownCoordinator) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.once.Do(func() {
		c.mu.Lock()
		steps := append([]shutdownStep(nil), c.steps...)
		c.mu.Unlock()

		for _, step := range steps {
			started := time.Now()
			err := step.stop(ctx)
			fields := map[string]string{
				"step":       step.name,
				"elapsed_ms": strconv.FormatInt(time.Since(started).Milliseconds(), 10),
			}
			if err != nil {
				c.err = errors.Join(c.err, err)
				fields["error"] = err.Error()
				if c.logger != nil {
					c.logger.Warn("shutdown step failed", fields)
				}
				continue
			}
			if c.logger != nil {
				c.logger.Debug("shutdown step finished", fields)
			}
		}
	})
	return c.err
}
