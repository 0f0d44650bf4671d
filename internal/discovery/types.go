// Package discovery locates nascraft servers on the local network without
// prior configuration. Two strategies exist: mDNS browsing and a UDP
// broadcast probe. The engine picks one at construction from the platform
// capabilities; every call is independent and bounded by its own deadline.
package discovery

import (
	"context"
	"strconv"
	"time"
)

const (
	DefaultServiceType = "_nascraft._tcp.local."
	DefaultProbePort   = 53530
	DefaultServerPort  = 8080

	DefaultTimeout = 3 * time.Second
	MinTimeout     = 100 * time.Millisecond
	MaxTimeout     = 30 * time.Second

	pollSlice = 250 * time.Millisecond
)

// Server is one discovered service instance.
type Server struct {
	InstanceName string   `json:"instance_name"`
	ServiceType  string   `json:"service_type"`
	Hostname     string   `json:"hostname"`
	IPv4         []string `json:"ip_v4"`
	Port         int      `json:"port"`
}

// Request carries per-call discovery parameters.
type Request struct {
	Timeout time.Duration
	// BroadcastAddrs overrides the probe targets of the broadcast strategy.
	// Entries without a port are sent to DefaultProbePort.
	BroadcastAddrs []string
}

// Strategy is one way of finding servers.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, request Request) ([]Server, error)
}

// ClampTimeout applies the default to zero and bounds the result to
// [MinTimeout, MaxTimeout].
func ClampTimeout(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return DefaultTimeout
	case timeout < MinTimeout:
		return MinTimeout
	case timeout > MaxTimeout:
		return MaxTimeout
	default:
		return timeout
	}
}

// TimeoutFromMillis converts a caller-supplied millisecond count, capping it
// at MaxTimeout before the multiplication can overflow time.Duration. Zero
// stays zero so the engine default still applies.
func TimeoutFromMillis(ms int64) time.Duration {
	if ms > MaxTimeout.Milliseconds() {
		return MaxTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

func serverKey(hostname string, port int) string {
	return hostname + "|" + strconv.Itoa(port)
}

// mergeServers concatenates groups in order, keeping the first server seen
// for each (hostname, port).
func mergeServers(groups ...[]Server) []Server {
	seen := make(map[string]struct{})
	merged := make([]Server, 0)
	for _, group := range groups {
		for _, server := range group {
			key := serverKey(server.Hostname, server.Port)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, server)
		}
	}
	return merged
}

// nextSlice returns how long the next wait may last before the deadline.
func nextSlice(deadline time.Time) time.Duration {
	remaining := time.Until(deadline)
	if remaining > pollSlice {
		return pollSlice
	}
	return remaining
}
