package discovery

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

type fakeBrowser struct {
	mu       sync.Mutex
	byType   map[string][]*zeroconf.ServiceEntry
	errs     map[string]error
	browsed  []string
	canceled chan string
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		byType:   make(map[string][]*zeroconf.ServiceEntry),
		errs:     make(map[string]error),
		canceled: make(chan string, 8),
	}
}

func (b *fakeBrowser) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	key := service + "." + domain + "."
	b.mu.Lock()
	b.browsed = append(b.browsed, key)
	err := b.errs[key]
	pending := b.byType[key]
	b.mu.Unlock()
	if err != nil {
		return err
	}
	go func() {
		for _, entry := range pending {
			select {
			case entries <- entry:
			case <-ctx.Done():
			}
		}
		<-ctx.Done()
		b.canceled <- key
	}()
	return nil
}

func (b *fakeBrowser) factory() func() (Browser, error) {
	return func() (Browser, error) { return b, nil }
}

func newEntry(instance, service, host string, port int, ips ...string) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(instance, service, "local.")
	entry.HostName = host
	entry.Port = port
	for _, ip := range ips {
		entry.AddrIPv4 = append(entry.AddrIPv4, net.ParseIP(ip))
	}
	return entry
}

func TestMDNSStrategyCollectsAndNormalizesEntries(t *testing.T) {
	browser := newFakeBrowser()
	browser.byType[DefaultServiceType] = []*zeroconf.ServiceEntry{
		newEntry("Living Room NAS", "_nascraft._tcp", "nas.local.", 8080, "10.0.0.10", "10.0.0.2", "10.0.0.10", "fe80::1"),
		newEntry("Living Room NAS", "_nascraft._tcp", "nas.local.", 8080, "10.0.0.2"),
		newEntry("No Addresses", "_nascraft._tcp", "bare.local.", 9000),
		newEntry("No Port", "_nascraft._tcp", "broken.local.", 0, "10.0.0.3"),
		newEntry("No Host", "_nascraft._tcp", "", 8080, "10.0.0.4"),
		nil,
	}
	strategy := NewMDNSStrategy(MDNSOptions{NewBrowser: browser.factory()})

	servers, err := strategy.Discover(context.Background(), Request{Timeout: 150 * time.Millisecond})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	expected := []Server{
		{
			InstanceName: "Living Room NAS",
			ServiceType:  DefaultServiceType,
			Hostname:     "nas.local.",
			IPv4:         []string{"10.0.0.2", "10.0.0.10"},
			Port:         8080,
		},
		{
			InstanceName: "No Addresses",
			ServiceType:  DefaultServiceType,
			Hostname:     "bare.local.",
			IPv4:         []string{"bare.local."},
			Port:         9000,
		},
	}
	if !reflect.DeepEqual(servers, expected) {
		t.Fatalf("unexpected servers:\n got %#v\nwant %#v", servers, expected)
	}
}

func TestMDNSStrategyMergesServiceTypes(t *testing.T) {
	browser := newFakeBrowser()
	browser.byType[DefaultServiceType] = []*zeroconf.ServiceEntry{
		newEntry("primary", "_nascraft._tcp", "nas.local.", 8080, "10.0.0.2"),
	}
	browser.byType["_http._tcp.local."] = []*zeroconf.ServiceEntry{
		newEntry("web", "_http._tcp", "nas.local.", 8080, "10.0.0.2"),
		newEntry("other", "_http._tcp", "other.local.", 80, "10.0.0.9"),
	}
	strategy := NewMDNSStrategy(MDNSOptions{
		ServiceTypes: []string{DefaultServiceType, "_http._tcp"},
		NewBrowser:   browser.factory(),
	})

	servers, err := strategy.Discover(context.Background(), Request{Timeout: 150 * time.Millisecond})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers after (hostname, port) dedup, got %#v", servers)
	}
	if servers[0].InstanceName != "primary" || servers[0].ServiceType != DefaultServiceType {
		t.Fatalf("expected primary type to win, got %#v", servers[0])
	}
	if servers[1].Hostname != "other.local." || servers[1].ServiceType != "_http._tcp.local." {
		t.Fatalf("unexpected second server %#v", servers[1])
	}
}

func TestMDNSStrategyRespectsDeadlineAndCancelsBrowse(t *testing.T) {
	browser := newFakeBrowser()
	strategy := NewMDNSStrategy(MDNSOptions{
		ServiceTypes: []string{"_a._tcp", "_b._tcp", "_c._tcp"},
		NewBrowser:   browser.factory(),
	})

	started := time.Now()
	servers, err := strategy.Discover(context.Background(), Request{Timeout: 200 * time.Millisecond})
	elapsed := time.Since(started)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected no servers, got %#v", servers)
	}
	if elapsed > 200*time.Millisecond+pollSlice+100*time.Millisecond {
		t.Fatalf("discovery took %s, expected types to share one deadline", elapsed)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-browser.canceled:
		case <-time.After(time.Second):
			t.Fatalf("expected every browse session to be canceled")
		}
	}
}

func TestMDNSStrategyReturnsContextCancellation(t *testing.T) {
	browser := newFakeBrowser()
	strategy := NewMDNSStrategy(MDNSOptions{NewBrowser: browser.factory()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	started := time.Now()
	if _, err := strategy.Discover(ctx, Request{Timeout: 5 * time.Second}); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if time.Since(started) > time.Second {
		t.Fatalf("expected cancellation to end discovery early")
	}
}

func TestMDNSStrategyFailsWhenEveryBrowseFails(t *testing.T) {
	browser := newFakeBrowser()
	browser.errs[DefaultServiceType] = errors.New("no multicast interface")
	strategy := NewMDNSStrategy(MDNSOptions{NewBrowser: browser.factory()})

	if _, err := strategy.Discover(context.Background(), Request{Timeout: 100 * time.Millisecond}); err == nil {
		t.Fatalf("expected error when the only browse fails")
	}
}

func TestMDNSStrategyPartialFailureStillReturnsServers(t *testing.T) {
	browser := newFakeBrowser()
	browser.errs["_b._tcp.local."] = errors.New("boom")
	browser.byType["_a._tcp.local."] = []*zeroconf.ServiceEntry{
		newEntry("a", "_a._tcp", "a.local.", 1234, "192.168.1.5"),
	}
	strategy := NewMDNSStrategy(MDNSOptions{
		ServiceTypes: []string{"_a._tcp", "_b._tcp"},
		NewBrowser:   browser.factory(),
	})

	servers, err := strategy.Discover(context.Background(), Request{Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(servers) != 1 || servers[0].InstanceName != "a" {
		t.Fatalf("unexpected servers %#v", servers)
	}
}

func TestMDNSStrategyResolverStartFailure(t *testing.T) {
	strategy := NewMDNSStrategy(MDNSOptions{NewBrowser: func() (Browser, error) {
		return nil, errors.New("socket denied")
	}})
	if _, err := strategy.Discover(context.Background(), Request{Timeout: 100 * time.Millisecond}); err == nil {
		t.Fatalf("expected resolver start failure to be returned")
	}
}

func TestInstanceName(t *testing.T) {
	cases := []struct {
		fullName string
		want     string
	}{
		{fullName: "Office._nascraft._tcp.local.", want: "Office"},
		{fullName: "Office._nascraft._tcp.local", want: "Office"},
		{fullName: "Office._other._tcp.local.", want: "Office._other._tcp.local."},
	}
	for _, tc := range cases {
		if got := instanceName(tc.fullName, DefaultServiceType); got != tc.want {
			t.Fatalf("instanceName(%q) = %q, want %q", tc.fullName, got, tc.want)
		}
	}
}

func TestNormalizeServiceType(t *testing.T) {
	cases := map[string]string{
		"_nascraft._tcp":        DefaultServiceType,
		"_nascraft._tcp.local":  DefaultServiceType,
		"_nascraft._tcp.local.": DefaultServiceType,
		" _ipp._tcp.lan. ":      "_ipp._tcp.lan.",
		"":                      "",
	}
	for input, want := range cases {
		if got := normalizeServiceType(input); got != want {
			t.Fatalf("normalizeServiceType(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSplitServiceType(t *testing.T) {
	service, domain := splitServiceType(DefaultServiceType)
	if service != "_nascraft._tcp" || domain != "local" {
		t.Fatalf("unexpected split %q %q", service, domain)
	}
}
