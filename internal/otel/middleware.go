package otel

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName          = "nascraft/api"
	spanNameHTTPRequest = "http.request"
)

// APIErrorInfo describes a handled API error so the request span can carry it.
type APIErrorInfo struct {
	Status  int
	Code    string
	Message string
}

type apiErrorKey struct{}

// RecordAPIError attaches info to the request span started by Middleware.
// It is a no-op outside an instrumented request.
func RecordAPIError(ctx context.Context, info APIErrorInfo) {
	if ctx == nil {
		return
	}
	tracker, ok := ctx.Value(apiErrorKey{}).(*APIErrorInfo)
	if !ok || tracker == nil {
		return
	}
	*tracker = info
}

// Middleware starts one server span per request. A nil tracer uses the
// global provider.
func Middleware(tracer trace.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			activeTracer := tracer
			if activeTracer == nil {
				activeTracer = otelapi.Tracer(TracerName)
			}
			ctx := otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			errorInfo := &APIErrorInfo{}
			ctx = context.WithValue(ctx, apiErrorKey{}, errorInfo)
			ctx, span := activeTracer.Start(ctx, spanNameHTTPRequest,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(RequestAttributes(r)...),
			)
			defer span.End()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(ctx)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			span.SetAttributes(
				attribute.Int("http.status_code", status),
				attribute.Int("http.response_size", ww.BytesWritten()),
			)
			if route := routePattern(r); route != "" {
				span.SetAttributes(attribute.String("http.route", route))
				span.SetName(spanNameHTTPRequest + " " + route)
			}
			if errorInfo.Code != "" {
				span.SetAttributes(attribute.String("error_type", errorInfo.Code))
			}
			if status >= http.StatusInternalServerError || errorInfo.Status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, errorInfo.Message)
			}
			if errorInfo.Message != "" {
				span.AddEvent("error", trace.WithAttributes(
					attribute.String("exception.message", errorInfo.Message),
				))
			}
		})
	}
}

// RequestAttributes are the attributes shared by request and websocket spans.
// The token query parameter is stripped from http.target.
func RequestAttributes(r *http.Request) []attribute.KeyValue {
	if r == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String("http.method", r.Method),
		attribute.String("http.target", sanitizeTarget(r)),
		attribute.String("http.scheme", requestScheme(r)),
		attribute.String("user_agent", r.UserAgent()),
	}
}

func routePattern(r *http.Request) string {
	routeContext := chi.RouteContext(r.Context())
	if routeContext == nil {
		return ""
	}
	return strings.TrimSpace(routeContext.RoutePattern())
}

func requestScheme(r *http.Request) string {
	if r.URL != nil && r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func sanitizeTarget(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	copyURL := *r.URL
	query := copyURL.Query()
	query.Del("token")
	copyURL.RawQuery = query.Encode()
	return copyURL.RequestURI()
}
