package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nascraft/internal/logging"
	"nascraft/internal/metrics"
	"nascraft/internal/platform"
)

const (
	tracerName  = "nascraft/discovery"
	spanNameRun = "discovery.run"
)

const (
	ModeAuto      = "auto"
	ModeMDNS      = "mdns"
	ModeBroadcast = "broadcast"
)

type EngineOptions struct {
	Capabilities platform.Capabilities
	// Mode overrides capability-based selection.
	Mode             string
	ServiceTypes     []string
	BroadcastTargets []string
	ProbePort        int
	NewBrowser       func() (Browser, error)
	Logger           *logging.Logger
	Registry         *metrics.Registry
}

// Engine runs discovery with the strategy chosen at construction.
type Engine struct {
	strategy Strategy
	mdns     *MDNSStrategy
	logger   *logging.Logger
	registry *metrics.Registry
}

// ParseMode validates a configured discovery mode.
func ParseMode(value string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(value))
	switch mode {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeMDNS, ModeBroadcast:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown discovery mode %q", value)
	}
}

func NewEngine(options EngineOptions) (*Engine, error) {
	mode, err := ParseMode(options.Mode)
	if err != nil {
		return nil, err
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	logger = logger.With(map[string]string{"component": "discovery"})

	useMDNS := mode == ModeMDNS || (mode == ModeAuto && options.Capabilities.Multicast)

	engine := &Engine{logger: logger, registry: options.Registry}
	if useMDNS {
		engine.mdns = NewMDNSStrategy(MDNSOptions{
			ServiceTypes: options.ServiceTypes,
			NewBrowser:   options.NewBrowser,
			Logger:       logger,
		})
		engine.strategy = engine.mdns
	} else {
		engine.strategy = NewBroadcastStrategy(BroadcastOptions{
			ProbePort: options.ProbePort,
			Targets:   options.BroadcastTargets,
			Logger:    logger,
			Registry:  options.Registry,
		})
	}
	return engine, nil
}

// NewEngineWithStrategy wraps an explicit strategy.
func NewEngineWithStrategy(strategy Strategy, logger *logging.Logger, registry *metrics.Registry) *Engine {
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	engine := &Engine{strategy: strategy, logger: logger, registry: registry}
	if mdns, ok := strategy.(*MDNSStrategy); ok {
		engine.mdns = mdns
	}
	return engine
}

// Strategy returns the name of the active strategy.
func (e *Engine) Strategy() string {
	if e == nil || e.strategy == nil {
		return ""
	}
	return e.strategy.Name()
}

// Discover runs one discovery pass. An empty result is not an error.
func (e *Engine) Discover(ctx context.Context, request Request) ([]Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	request.Timeout = ClampTimeout(request.Timeout)
	name := e.strategy.Name()
	return e.run(ctx, name, request.Timeout, func(ctx context.Context) ([]Server, error) {
		return e.strategy.Discover(ctx, request)
	})
}

// Browse runs a single mDNS pass for an arbitrary service type. It is only
// available when the mDNS strategy is active.
func (e *Engine) Browse(ctx context.Context, serviceType string, timeout time.Duration) ([]Server, error) {
	if e.mdns == nil {
		return nil, platform.ErrUnsupported
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timeout = ClampTimeout(timeout)
	return e.run(ctx, e.mdns.Name(), timeout, func(ctx context.Context) ([]Server, error) {
		return e.mdns.BrowseType(ctx, serviceType, timeout)
	}, attribute.String("discovery.service_type", serviceType))
}

// run wraps one pass with a discovery.run span and start/finish log lines
// sharing a discovery_id.
func (e *Engine) run(ctx context.Context, strategy string, timeout time.Duration, discover func(context.Context) ([]Server, error), attrs ...attribute.KeyValue) ([]Server, error) {
	discoveryID := uuid.NewString()
	ctx, span := otelapi.Tracer(tracerName).Start(ctx, spanNameRun,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("discovery.id", discoveryID),
			attribute.String("discovery.strategy", strategy),
			attribute.Int64("discovery.timeout_ms", timeout.Milliseconds()),
		}, attrs...)...),
	)
	defer span.End()

	logger := e.logger.With(map[string]string{
		"discovery_id": discoveryID,
		"strategy":     strategy,
	})
	logger.Info("discovery started", map[string]string{
		"timeout_ms": strconv.FormatInt(timeout.Milliseconds(), 10),
	})

	started := time.Now()
	servers, err := discover(ctx)
	elapsed := time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("discovery failed", map[string]string{
			"error":      err.Error(),
			"elapsed_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
		})
		return nil, err
	}
	if servers == nil {
		servers = []Server{}
	}
	e.registry.RecordDiscovery(strategy, len(servers))
	span.SetAttributes(attribute.Int("discovery.found", len(servers)))

	names := make([]string, 0, len(servers))
	for _, server := range servers {
		names = append(names, describeServer(server))
	}
	logger.Info("discovery finished", map[string]string{
		"found":      strconv.Itoa(len(servers)),
		"servers":    strings.Join(names, ","),
		"elapsed_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
	})
	return servers, nil
}
