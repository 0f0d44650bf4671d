package logfile

import (
	"context"
	"fmt"
	"io"

	"github.com/nxadm/tail"
)

// FollowOptions configures Follow.
type FollowOptions struct {
	// FromStart replays the current contents before following.
	FromStart bool
	// Poll uses stat polling instead of inotify.
	Poll bool
}

// Follow streams lines appended to the log file at path until ctx is done.
// The file may not exist yet, and a truncation on overflow restarts reading
// from the beginning of the emptied file.
func Follow(ctx context.Context, path string, options FollowOptions, onLine func(string)) error {
	if path == "" {
		return ErrPathRequired
	}
	location := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if options.FromStart {
		location = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}
	follower, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      options.Poll,
		Location:  location,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("follow %s: %w", path, err)
	}
	defer follower.Cleanup()
	defer func() {
		_ = follower.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-follower.Lines:
			if !ok {
				return follower.Err()
			}
			if line.Err != nil {
				continue
			}
			onLine(line.Text)
		}
	}
}
