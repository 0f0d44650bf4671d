package discovery

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"nascraft/internal/metrics"
)

func TestParseReplyUsesSenderAddress(t *testing.T) {
	sender := &net.UDPAddr{IP: net.ParseIP("192.0.2.5"), Port: 53530}

	server, err := ParseReply([]byte(`{"t":"nascraft_here","v":1,"name":"","port":8080}`), sender)
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	expected := Server{
		InstanceName: "192.0.2.5",
		ServiceType:  "_nascraft._tcp.local.",
		Hostname:     "192.0.2.5",
		IPv4:         []string{"192.0.2.5"},
		Port:         8080,
	}
	if !reflect.DeepEqual(server, expected) {
		t.Fatalf("expected %#v, got %#v", expected, server)
	}
}

func TestParseReplyDefaultsPortAndKeepsName(t *testing.T) {
	sender := &net.UDPAddr{IP: net.ParseIP("192.0.2.7"), Port: 40000}

	server, err := ParseReply([]byte(`{"t":"nascraft_here","v":1,"name":"Garage"}`), sender)
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	if server.InstanceName != "Garage" || server.Port != DefaultServerPort {
		t.Fatalf("unexpected server %#v", server)
	}
}

func TestParseReplyRejectsMismatchedDatagrams(t *testing.T) {
	sender := &net.UDPAddr{IP: net.ParseIP("192.0.2.5"), Port: 53530}
	cases := map[string]struct {
		data string
		want error
	}{
		"not json":      {data: "hello", want: errNotJSON},
		"json array":    {data: `[1,2]`, want: errNotJSON},
		"probe":         {data: `{"t":"nascraft_discover","v":1}`, want: errWrongType},
		"wrong version": {data: `{"t":"nascraft_here","v":2,"port":8080}`, want: errWrongVersion},
		"huge port":     {data: `{"t":"nascraft_here","v":1,"port":70000}`, want: errBadPort},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseReply([]byte(tc.data), sender); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := ParseReply([]byte(`{"t":"nascraft_here","v":1}`), &net.UDPAddr{IP: net.ParseIP("2001:db8::1")}); !errors.Is(err, errNoSender) {
		t.Fatalf("expected IPv6 sender to be rejected, got %v", err)
	}
}

func TestProbeMessageRoundTrip(t *testing.T) {
	if string(ProbeMessage()) != `{"t":"nascraft_discover","v":1}` {
		t.Fatalf("unexpected probe encoding %s", ProbeMessage())
	}
	if !IsProbe(ProbeMessage()) {
		t.Fatalf("expected probe to be recognized")
	}
	if IsProbe(ReplyMessage("x", 1)) {
		t.Fatalf("expected reply not to be a probe")
	}
}

func TestResolveTargetAddsDefaultPort(t *testing.T) {
	address, err := resolveTarget("127.0.0.1", DefaultProbePort)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if address.Port != DefaultProbePort {
		t.Fatalf("expected default port, got %d", address.Port)
	}
	address, err = resolveTarget("127.0.0.1:9999", DefaultProbePort)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if address.Port != 9999 {
		t.Fatalf("expected explicit port, got %d", address.Port)
	}
	if _, err := resolveTarget("  ", DefaultProbePort); err == nil {
		t.Fatalf("expected empty target to fail")
	}
}

// startResponder answers each probe with the given datagrams.
func startResponder(t *testing.T, replies ...[]byte) (*net.UDPAddr, <-chan struct{}) {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen responder: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	probed := make(chan struct{}, 1)
	go func() {
		buffer := make([]byte, maxDatagram)
		for {
			n, sender, err := conn.ReadFrom(buffer)
			if err != nil {
				return
			}
			if !IsProbe(buffer[:n]) {
				continue
			}
			select {
			case probed <- struct{}{}:
			default:
			}
			for _, reply := range replies {
				_, _ = conn.WriteTo(reply, sender)
			}
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr), probed
}

func TestBroadcastStrategyLoopbackExchange(t *testing.T) {
	responder, probed := startResponder(t,
		ReplyMessage("Loopback NAS", 8443),
		// Same host and port under another name: the first reply wins.
		ReplyMessage("Renamed NAS", 8443),
		[]byte("garbage"),
		[]byte(`{"t":"nascraft_here","v":9}`),
	)

	var mu sync.Mutex
	var ignored []error
	registry := &metrics.Registry{}
	strategy := NewBroadcastStrategy(BroadcastOptions{
		Registry: registry,
		OnIgnored: func(_ net.Addr, err error) {
			mu.Lock()
			ignored = append(ignored, err)
			mu.Unlock()
		},
	})

	servers, err := strategy.Discover(context.Background(), Request{
		Timeout:        300 * time.Millisecond,
		BroadcastAddrs: []string{responder.String()},
	})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	select {
	case <-probed:
	default:
		t.Fatalf("responder never received a probe")
	}
	if len(servers) != 1 {
		t.Fatalf("expected 1 deduplicated server, got %#v", servers)
	}
	server := servers[0]
	if server.InstanceName != "Loopback NAS" || server.Hostname != "127.0.0.1" || server.Port != 8443 {
		t.Fatalf("unexpected server %#v", server)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ignored) != 2 {
		t.Fatalf("expected 2 ignored datagrams, got %v", ignored)
	}
	if registry.Snapshot()["datagrams_ignored"] != 2 {
		t.Fatalf("expected ignored datagrams counted")
	}
}

func TestBroadcastStrategyNoRepliesIsEmptySuccess(t *testing.T) {
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer silent.Close()

	strategy := NewBroadcastStrategy(BroadcastOptions{})
	started := time.Now()
	servers, err := strategy.Discover(context.Background(), Request{
		Timeout:        200 * time.Millisecond,
		BroadcastAddrs: []string{silent.LocalAddr().String()},
	})
	elapsed := time.Since(started)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if servers == nil || len(servers) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", servers)
	}
	if elapsed < 150*time.Millisecond || elapsed > 200*time.Millisecond+pollSlice+100*time.Millisecond {
		t.Fatalf("unexpected elapsed time %s", elapsed)
	}
}

func TestBroadcastStrategyRejectsInvalidTargets(t *testing.T) {
	strategy := NewBroadcastStrategy(BroadcastOptions{})
	_, err := strategy.Discover(context.Background(), Request{
		Timeout:        100 * time.Millisecond,
		BroadcastAddrs: []string{"not a host:port:at all"},
	})
	if !errors.Is(err, ErrNoProbeTargets) {
		t.Fatalf("expected ErrNoProbeTargets, got %v", err)
	}
}

func TestBroadcastStrategyBindFailure(t *testing.T) {
	strategy := NewBroadcastStrategy(BroadcastOptions{
		Listen: func() (net.PacketConn, error) {
			return nil, errors.New("address in use")
		},
	})
	if _, err := strategy.Discover(context.Background(), Request{BroadcastAddrs: []string{"127.0.0.1"}}); err == nil {
		t.Fatalf("expected bind failure to be returned")
	}
}
