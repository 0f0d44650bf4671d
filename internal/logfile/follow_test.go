package logfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startFollow(t *testing.T, path string, options FollowOptions) <-chan string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, options, func(line string) {
			lines <- line
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("follow did not stop")
		}
	})
	return lines
}

func expectLine(t *testing.T, lines <-chan string, want string) {
	t.Helper()
	select {
	case got := <-lines:
		if got != want {
			t.Fatalf("expected line %q, got %q", want, got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestFollowFromStartThenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nascraft.log")
	if err := os.WriteFile(path, []byte("existing\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := startFollow(t, path, FollowOptions{FromStart: true, Poll: true})
	expectLine(t, lines, "existing")

	file, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := file.AppendLine("appended"); err != nil {
		t.Fatalf("append: %v", err)
	}
	expectLine(t, lines, "appended")
}

func TestFollowSurvivesTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nascraft.log")
	if err := os.WriteFile(path, []byte("first line before the cap\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := startFollow(t, path, FollowOptions{FromStart: true, Poll: true})
	expectLine(t, lines, "first line before the cap")

	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	time.Sleep(600 * time.Millisecond)
	if err := os.WriteFile(path, []byte("after\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	expectLine(t, lines, "after")
}

func TestFollowRequiresPath(t *testing.T) {
	if err := Follow(context.Background(), "", FollowOptions{}, func(string) {}); err != ErrPathRequired {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
}
