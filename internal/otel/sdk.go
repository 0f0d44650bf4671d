package otel

import (
	"context"
	"errors"
	"os"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	logglobal "go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultServiceName = "nascraftd"

// SDKOptions configures the OTLP/HTTP exporters. An empty HTTPEndpoint
// leaves the global no-op providers in place.
type SDKOptions struct {
	HTTPEndpoint       string
	ServiceName        string
	ServiceVersion     string
	ResourceAttributes map[string]string
}

// SetupSDK installs global tracer and logger providers exporting to the
// collector at HTTPEndpoint. The returned func flushes and shuts them down.
func SetupSDK(ctx context.Context, options SDKOptions) (func(context.Context) error, error) {
	endpoint := normalizeEndpoint(options.HTTPEndpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	logExporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(endpoint),
		otlploghttp.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, err
	}

	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(resourceAttributes(options)...))
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		_ = logExporter.Shutdown(ctx)
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)

	otelapi.SetTracerProvider(tracerProvider)
	logglobal.SetLoggerProvider(loggerProvider)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(shutdownCtx context.Context) error {
		var shutdownErr error
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}
		return shutdownErr
	}, nil
}

func resourceAttributes(options SDKOptions) []attribute.KeyValue {
	serviceName := strings.TrimSpace(options.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
	}
	if strings.TrimSpace(options.ServiceVersion) != "" {
		attrs = append(attrs, attribute.String("service.version", options.ServiceVersion))
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		attrs = append(attrs, attribute.String("host.name", host))
	}
	for key, value := range options.ResourceAttributes {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		attrs = append(attrs, attribute.String(trimmedKey, value))
	}
	return attrs
}

// ParseResourceAttributes reads a "key=value,key=value" list and skips
// malformed pairs.
func ParseResourceAttributes(raw string) map[string]string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	attributes := make(map[string]string)
	for _, pair := range strings.Split(trimmed, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		attributes[key] = strings.TrimSpace(value)
	}
	if len(attributes) == 0 {
		return nil
	}
	return attributes
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimSuffix(endpoint, "/")
}
