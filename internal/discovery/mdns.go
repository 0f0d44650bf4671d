package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"nascraft/internal/logging"
)

// Browser is the subset of *zeroconf.Resolver used here.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// NewZeroconfBrowser opens a multicast DNS resolver.
func NewZeroconfBrowser() (Browser, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, err
	}
	return resolver, nil
}

type MDNSOptions struct {
	// ServiceTypes are browsed concurrently and merged in this order.
	ServiceTypes []string
	NewBrowser   func() (Browser, error)
	Logger       *logging.Logger
}

// MDNSStrategy browses one or more DNS-SD service types.
type MDNSStrategy struct {
	serviceTypes []string
	newBrowser   func() (Browser, error)
	logger       *logging.Logger
}

func NewMDNSStrategy(options MDNSOptions) *MDNSStrategy {
	types := make([]string, 0, len(options.ServiceTypes)+1)
	for _, serviceType := range options.ServiceTypes {
		normalized := normalizeServiceType(serviceType)
		if normalized == "" || slices.Contains(types, normalized) {
			continue
		}
		types = append(types, normalized)
	}
	if len(types) == 0 {
		types = append(types, DefaultServiceType)
	}
	newBrowser := options.NewBrowser
	if newBrowser == nil {
		newBrowser = NewZeroconfBrowser
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	return &MDNSStrategy{serviceTypes: types, newBrowser: newBrowser, logger: logger}
}

func (s *MDNSStrategy) Name() string {
	return "mdns"
}

func (s *MDNSStrategy) ServiceTypes() []string {
	return slices.Clone(s.serviceTypes)
}

// Discover browses every configured service type against one shared deadline.
// It fails only when every browse session failed.
func (s *MDNSStrategy) Discover(ctx context.Context, request Request) ([]Server, error) {
	deadline := time.Now().Add(ClampTimeout(request.Timeout))

	results := make([][]Server, len(s.serviceTypes))
	errs := make([]error, len(s.serviceTypes))
	var wg sync.WaitGroup
	for index, serviceType := range s.serviceTypes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[index], errs[index] = s.browseType(ctx, serviceType, deadline)
		}()
	}
	wg.Wait()

	failed := 0
	for index, err := range errs {
		if err == nil {
			continue
		}
		failed++
		s.logger.Warn("mdns browse failed", map[string]string{
			"service_type": s.serviceTypes[index],
			"error":        err.Error(),
		})
	}
	if failed == len(s.serviceTypes) {
		return nil, errors.Join(errs...)
	}
	return mergeServers(results...), nil
}

// BrowseType runs a single pass for one service type.
func (s *MDNSStrategy) BrowseType(ctx context.Context, serviceType string, timeout time.Duration) ([]Server, error) {
	normalized := normalizeServiceType(serviceType)
	if normalized == "" {
		normalized = DefaultServiceType
	}
	servers, err := s.browseType(ctx, normalized, time.Now().Add(ClampTimeout(timeout)))
	if err != nil {
		return nil, err
	}
	return mergeServers(servers), nil
}

func (s *MDNSStrategy) browseType(ctx context.Context, serviceType string, deadline time.Time) ([]Server, error) {
	browser, err := s.newBrowser()
	if err != nil {
		return nil, fmt.Errorf("start mdns resolver: %w", err)
	}

	browseCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	service, domain := splitServiceType(serviceType)
	entries := make(chan *zeroconf.ServiceEntry, 32)
	if err := browser.Browse(browseCtx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", serviceType, err)
	}

	seen := make(map[string]struct{})
	servers := make([]Server, 0)
	for {
		wait := nextSlice(deadline)
		if wait <= 0 {
			return servers, nil
		}
		timer := time.NewTimer(wait)
		select {
		case entry, ok := <-entries:
			timer.Stop()
			if !ok {
				return servers, nil
			}
			server, fullName, accepted := serverFromEntry(entry, serviceType)
			if !accepted {
				continue
			}
			if _, dup := seen[fullName]; dup {
				continue
			}
			seen[fullName] = struct{}{}
			servers = append(servers, server)
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return servers, nil
		}
	}
}

// serverFromEntry validates a resolved entry. It returns the server and the
// entry's full instance name, or false when the entry is incomplete.
func serverFromEntry(entry *zeroconf.ServiceEntry, serviceType string) (Server, string, bool) {
	if entry == nil || entry.HostName == "" || entry.Port <= 0 || entry.Instance == "" {
		return Server{}, "", false
	}
	fullName := entry.ServiceInstanceName()
	if fullName == "" {
		return Server{}, "", false
	}

	addresses := sortedIPv4(entry.AddrIPv4)
	if len(addresses) == 0 {
		addresses = []string{entry.HostName}
	}

	return Server{
		InstanceName: instanceName(fullName, serviceType),
		ServiceType:  serviceType,
		Hostname:     entry.HostName,
		IPv4:         addresses,
		Port:         entry.Port,
	}, fullName, true
}

// instanceName strips the ".<service_type>" suffix from a full instance name.
func instanceName(fullName, serviceType string) string {
	suffix := "." + strings.TrimSuffix(serviceType, ".") + "."
	withDot := fullName
	if !strings.HasSuffix(withDot, ".") {
		withDot += "."
	}
	if trimmed, ok := strings.CutSuffix(withDot, suffix); ok && trimmed != "" {
		return trimmed
	}
	return fullName
}

func sortedIPv4(ips []net.IP) []string {
	addresses := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		ip4 := ip.To4()
		if ip4 == nil {
			continue
		}
		addresses = append(addresses, netip.AddrFrom4([4]byte(ip4)))
	}
	slices.SortFunc(addresses, func(a, b netip.Addr) int {
		return a.Compare(b)
	})
	addresses = slices.Compact(addresses)

	rendered := make([]string, 0, len(addresses))
	for _, address := range addresses {
		rendered = append(rendered, address.String())
	}
	return rendered
}

// normalizeServiceType returns the type with a single trailing dot, adding
// the "local." domain when none is given.
func normalizeServiceType(value string) string {
	trimmed := strings.Trim(strings.TrimSpace(value), ".")
	if trimmed == "" {
		return ""
	}
	service, domain := splitServiceType(trimmed)
	return service + "." + domain + "."
}

// splitServiceType separates "_svc._tcp.local." into "_svc._tcp" and "local".
func splitServiceType(serviceType string) (string, string) {
	trimmed := strings.Trim(serviceType, ".")
	for _, protocol := range []string{"._tcp", "._udp"} {
		index := strings.LastIndex(trimmed, protocol)
		if index < 0 {
			continue
		}
		end := index + len(protocol)
		service := trimmed[:end]
		domain := strings.Trim(trimmed[end:], ".")
		if domain == "" {
			domain = "local"
		}
		return service, domain
	}
	return trimmed, "local"
}

func describeServer(server Server) string {
	return server.InstanceName + "@" + server.Hostname + ":" + strconv.Itoa(server.Port)
}
