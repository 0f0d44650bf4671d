package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"nascraft/internal/logging"
	"nascraft/internal/metrics"
)

const (
	probeType      = "nascraft_discover"
	replyType      = "nascraft_here"
	messageVersion = 1
	maxDatagram    = 2048
)

var (
	ErrNoProbeTargets = errors.New("no valid broadcast targets")
	errNotJSON        = errors.New("datagram is not a JSON object")
	errWrongType      = errors.New("datagram type is not " + replyType)
	errWrongVersion   = errors.New("unsupported datagram version")
	errBadPort        = errors.New("datagram port out of range")
	errNoSender       = errors.New("sender is not an IPv4 UDP address")
)

type probeMessage struct {
	Type    string `json:"t"`
	Version int    `json:"v"`
}

type replyMessage struct {
	Type    string `json:"t"`
	Version int    `json:"v"`
	Name    string `json:"name"`
	Port    int    `json:"port"`
}

// ProbeMessage returns the encoded discovery probe.
func ProbeMessage() []byte {
	data, _ := json.Marshal(probeMessage{Type: probeType, Version: messageVersion})
	return data
}

// ReplyMessage encodes a reply as a server would send it.
func ReplyMessage(name string, port int) []byte {
	data, _ := json.Marshal(replyMessage{Type: replyType, Version: messageVersion, Name: name, Port: port})
	return data
}

// IsProbe reports whether data is a discovery probe.
func IsProbe(data []byte) bool {
	var message probeMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return false
	}
	return message.Type == probeType && message.Version == messageVersion
}

type BroadcastOptions struct {
	// ProbePort is used for targets given without a port.
	ProbePort int
	// Targets are the default probe destinations.
	Targets   []string
	Logger    *logging.Logger
	Registry  *metrics.Registry
	OnIgnored func(sender net.Addr, err error)
	Listen    func() (net.PacketConn, error)
}

// BroadcastStrategy sends one probe datagram to each target and collects
// replies until the deadline.
type BroadcastStrategy struct {
	probePort int
	targets   []string
	logger    *logging.Logger
	registry  *metrics.Registry
	onIgnored func(sender net.Addr, err error)
	listen    func() (net.PacketConn, error)
}

func NewBroadcastStrategy(options BroadcastOptions) *BroadcastStrategy {
	probePort := options.ProbePort
	if probePort <= 0 {
		probePort = DefaultProbePort
	}
	targets := options.Targets
	if len(targets) == 0 {
		targets = []string{"255.255.255.255"}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	listen := options.Listen
	if listen == nil {
		listen = func() (net.PacketConn, error) {
			// Datagram sockets are created with SO_BROADCAST enabled.
			return net.ListenPacket("udp4", ":0")
		}
	}
	return &BroadcastStrategy{
		probePort: probePort,
		targets:   targets,
		logger:    logger,
		registry:  options.Registry,
		onIgnored: options.OnIgnored,
		listen:    listen,
	}
}

func (s *BroadcastStrategy) Name() string {
	return "broadcast"
}

func (s *BroadcastStrategy) Discover(ctx context.Context, request Request) ([]Server, error) {
	deadline := time.Now().Add(ClampTimeout(request.Timeout))

	rawTargets := request.BroadcastAddrs
	if len(rawTargets) == 0 {
		rawTargets = s.targets
	}
	targets := s.resolveTargets(rawTargets)
	if len(targets) == 0 {
		return nil, ErrNoProbeTargets
	}

	conn, err := s.listen()
	if err != nil {
		return nil, fmt.Errorf("bind discovery socket: %w", err)
	}
	defer conn.Close()

	probe := ProbeMessage()
	for _, target := range targets {
		if _, err := conn.WriteTo(probe, target); err != nil {
			s.registry.IncProbeSendFailure()
			s.logger.Warn("discovery probe send failed", map[string]string{
				"target": target.String(),
				"error":  err.Error(),
			})
		}
	}

	seen := make(map[string]struct{})
	servers := make([]Server, 0)
	buffer := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return servers, nil
		}
		wait := nextSlice(deadline)
		if wait <= 0 {
			return servers, nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return servers, nil
		}
		n, sender, err := conn.ReadFrom(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Warn("discovery receive failed", map[string]string{"error": err.Error()})
			return servers, nil
		}

		server, err := ParseReply(buffer[:n], sender)
		if err != nil {
			s.ignore(sender, err)
			continue
		}
		key := serverKey(server.Hostname, server.Port)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		servers = append(servers, server)
	}
}

func (s *BroadcastStrategy) ignore(sender net.Addr, err error) {
	s.registry.IncDatagramIgnored()
	fields := map[string]string{"reason": err.Error()}
	if sender != nil {
		fields["sender"] = sender.String()
	}
	s.logger.Debug("discovery datagram ignored", fields)
	if s.onIgnored != nil {
		s.onIgnored(sender, err)
	}
}

func (s *BroadcastStrategy) resolveTargets(raw []string) []*net.UDPAddr {
	targets := make([]*net.UDPAddr, 0, len(raw))
	for _, entry := range raw {
		address, err := resolveTarget(entry, s.probePort)
		if err != nil {
			s.logger.Warn("invalid broadcast target", map[string]string{
				"target": entry,
				"error":  err.Error(),
			})
			continue
		}
		targets = append(targets, address)
	}
	return targets
}

func resolveTarget(entry string, defaultPort int) (*net.UDPAddr, error) {
	trimmed := strings.TrimSpace(entry)
	if trimmed == "" {
		return nil, errors.New("empty target")
	}
	if _, _, err := net.SplitHostPort(trimmed); err != nil {
		trimmed = net.JoinHostPort(trimmed, strconv.Itoa(defaultPort))
	}
	return net.ResolveUDPAddr("udp4", trimmed)
}

// ParseReply validates a reply datagram and builds the server it announces.
// The sender address supplies the hostname and IPv4 address.
func ParseReply(data []byte, sender net.Addr) (Server, error) {
	udp, ok := sender.(*net.UDPAddr)
	if !ok || udp.IP.To4() == nil {
		return Server{}, errNoSender
	}
	var message replyMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return Server{}, errNotJSON
	}
	if message.Type != replyType {
		return Server{}, errWrongType
	}
	if message.Version != messageVersion {
		return Server{}, errWrongVersion
	}
	port := message.Port
	if port <= 0 {
		port = DefaultServerPort
	}
	if port > 65535 {
		return Server{}, errBadPort
	}

	ip := udp.IP.To4().String()
	name := strings.TrimSpace(message.Name)
	if name == "" {
		name = ip
	}
	return Server{
		InstanceName: name,
		ServiceType:  DefaultServiceType,
		Hostname:     ip,
		IPv4:         []string{ip},
		Port:         port,
	}, nil
}
