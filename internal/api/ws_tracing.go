package api

import (
	"context"
	"net/http"
	"strings"

	nasotel "nascraft/internal/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const wsConnectSpanName = "websocket.connect"

// startWebSocketSpan covers a websocket session from upgrade to disconnect.
func startWebSocketSpan(r *http.Request, route string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx := context.Background()
	if r != nil {
		ctx = otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	}

	baseAttrs := nasotel.RequestAttributes(r)
	if strings.TrimSpace(route) != "" {
		baseAttrs = append(baseAttrs, attribute.String("http.route", route))
	}
	baseAttrs = append(baseAttrs, attrs...)

	return otelapi.Tracer("nascraft/ws").Start(ctx, wsConnectSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(baseAttrs...),
	)
}
