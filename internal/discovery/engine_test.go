package discovery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"nascraft/internal/logging"
	"nascraft/internal/metrics"
	"nascraft/internal/platform"
)

type recordingStrategy struct {
	name     string
	servers  []Server
	err      error
	requests []Request
}

func (s *recordingStrategy) Name() string {
	return s.name
}

func (s *recordingStrategy) Discover(_ context.Context, request Request) ([]Server, error) {
	s.requests = append(s.requests, request)
	return s.servers, s.err
}

func TestNewEngineSelectsStrategyFromCapabilities(t *testing.T) {
	cases := []struct {
		name     string
		goos     string
		mode     string
		expected string
	}{
		{name: "desktop auto", goos: "linux", mode: "", expected: "mdns"},
		{name: "mobile auto", goos: "android", mode: "auto", expected: "broadcast"},
		{name: "forced broadcast", goos: "darwin", mode: "broadcast", expected: "broadcast"},
		{name: "forced mdns", goos: "ios", mode: "MDNS", expected: "mdns"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewEngine(EngineOptions{
				Capabilities: platform.ForOS(tc.goos),
				Mode:         tc.mode,
			})
			if err != nil {
				t.Fatalf("new engine: %v", err)
			}
			if engine.Strategy() != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, engine.Strategy())
			}
		})
	}
}

func TestNewEngineRejectsUnknownMode(t *testing.T) {
	if _, err := NewEngine(EngineOptions{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}
}

func TestEngineClampsTimeout(t *testing.T) {
	strategy := &recordingStrategy{name: "fake"}
	engine := NewEngineWithStrategy(strategy, nil, nil)

	for _, timeout := range []time.Duration{0, time.Millisecond, time.Hour} {
		if _, err := engine.Discover(context.Background(), Request{Timeout: timeout}); err != nil {
			t.Fatalf("discover: %v", err)
		}
	}
	got := []time.Duration{
		strategy.requests[0].Timeout,
		strategy.requests[1].Timeout,
		strategy.requests[2].Timeout,
	}
	want := []time.Duration{DefaultTimeout, MinTimeout, MaxTimeout}
	for index := range want {
		if got[index] != want[index] {
			t.Fatalf("request %d: expected timeout %s, got %s", index, want[index], got[index])
		}
	}
}

func TestEngineDiscoverReturnsEmptySliceAndRecordsMetrics(t *testing.T) {
	registry := &metrics.Registry{}
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, io.Discard)
	engine := NewEngineWithStrategy(&recordingStrategy{name: "fake"}, logger, registry)

	servers, err := engine.Discover(context.Background(), Request{})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if servers == nil || len(servers) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", servers)
	}
	if registry.Snapshot()["discovery_runs"] != 1 {
		t.Fatalf("expected discovery run counted")
	}

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected start and finish entries, got %d", len(entries))
	}
	id := entries[0].Context["discovery_id"]
	if id == "" || entries[1].Context["discovery_id"] != id {
		t.Fatalf("expected shared correlation id, got %v / %v", entries[0].Context, entries[1].Context)
	}
}

func TestEngineDiscoverPropagatesErrors(t *testing.T) {
	engine := NewEngineWithStrategy(&recordingStrategy{name: "fake", err: errors.New("no interface")}, nil, nil)
	if _, err := engine.Discover(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEngineBrowseUnsupportedWithoutMDNS(t *testing.T) {
	engine, err := NewEngine(EngineOptions{Capabilities: platform.ForOS("android")})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Browse(context.Background(), "_http._tcp", time.Second); !errors.Is(err, platform.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestEngineBrowseUsesRequestedType(t *testing.T) {
	browser := newFakeBrowser()
	engine, err := NewEngine(EngineOptions{
		Capabilities: platform.ForOS("linux"),
		NewBrowser:   browser.factory(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if _, err := engine.Browse(context.Background(), "_ipp._tcp", 100*time.Millisecond); err != nil {
		t.Fatalf("browse: %v", err)
	}
	browser.mu.Lock()
	defer browser.mu.Unlock()
	if len(browser.browsed) != 1 || browser.browsed[0] != "_ipp._tcp.local." {
		t.Fatalf("unexpected browsed types %v", browser.browsed)
	}
}
