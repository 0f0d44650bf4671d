package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
)

func (b *Bus[T]) emitOTel(event T) {
	if b.otel == nil {
		return
	}
	name := strings.TrimSpace(event.Type())
	if name == "" {
		return
	}
	severity, severityText := severityForEvent(name)
	ctx := context.Background()
	if !b.otel.Enabled(ctx, otellog.EnabledParameters{Severity: severity, EventName: name}) {
		return
	}

	occurred := event.Timestamp()
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	var record otellog.Record
	record.SetEventName(name)
	record.SetTimestamp(occurred)
	record.SetObservedTimestamp(time.Now().UTC())
	record.SetSeverity(severity)
	record.SetSeverityText(severityText)
	record.SetBody(otellog.StringValue(name))
	record.AddAttributes(
		otellog.String("event.bus", b.name),
		otellog.String("event.type", name),
		otellog.String("event.kind", fmt.Sprintf("%T", event)),
	)
	record.AddAttributes(eventAttributes(event)...)
	b.otel.Emit(ctx, record)
}

func severityForEvent(eventType string) (otellog.Severity, string) {
	if eventType == EventTypeWatchError {
		return otellog.SeverityWarn, "warn"
	}
	return otellog.SeverityInfo, "info"
}

func eventAttributes(event Event) []otellog.KeyValue {
	file, ok := event.(FileEvent)
	if !ok {
		return nil
	}
	attrs := make([]otellog.KeyValue, 0, 3)
	if file.Path != "" {
		attrs = append(attrs, otellog.String("file.path", file.Path))
	}
	if file.Operation != "" {
		attrs = append(attrs, otellog.String("file.operation", file.Operation))
	}
	if file.Error != "" {
		attrs = append(attrs, otellog.String("error.message", file.Error))
	}
	return attrs
}
