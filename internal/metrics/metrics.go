package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type Registry struct {
	logLinesWritten    atomic.Int64
	logTruncations     atomic.Int64
	logWriteFailures   atomic.Int64
	watchAdded         atomic.Int64
	watchRemoved       atomic.Int64
	watchFailures      atomic.Int64
	watchUnwatchErrors atomic.Int64
	watchErrors        atomic.Int64
	filesCreated       atomic.Int64
	datagramsIgnored   atomic.Int64
	probeSendFailures  atomic.Int64
	eventEvictions     atomic.Int64
	discoveryRuns      sync.Map
	discoveryFound     sync.Map
	eventPublished     sync.Map
	eventDropped       sync.Map
	eventSubscribers   sync.Map
}

type subscriberCounts struct {
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncLogLineWritten() {
	if r == nil {
		return
	}
	r.logLinesWritten.Add(1)
}

func (r *Registry) IncLogTruncation() {
	if r == nil {
		return
	}
	r.logTruncations.Add(1)
}

func (r *Registry) IncLogWriteFailure() {
	if r == nil {
		return
	}
	r.logWriteFailures.Add(1)
}

func (r *Registry) IncWatchAdded() {
	if r == nil {
		return
	}
	r.watchAdded.Add(1)
}

func (r *Registry) IncWatchRemoved() {
	if r == nil {
		return
	}
	r.watchRemoved.Add(1)
}

func (r *Registry) IncWatchFailure() {
	if r == nil {
		return
	}
	r.watchFailures.Add(1)
}

func (r *Registry) IncUnwatchError() {
	if r == nil {
		return
	}
	r.watchUnwatchErrors.Add(1)
}

func (r *Registry) IncWatcherError() {
	if r == nil {
		return
	}
	r.watchErrors.Add(1)
}

func (r *Registry) IncFileCreated() {
	if r == nil {
		return
	}
	r.filesCreated.Add(1)
}

func (r *Registry) IncDatagramIgnored() {
	if r == nil {
		return
	}
	r.datagramsIgnored.Add(1)
}

func (r *Registry) IncProbeSendFailure() {
	if r == nil {
		return
	}
	r.probeSendFailures.Add(1)
}

// RecordDiscovery counts one discovery call for a strategy and the servers it returned.
func (r *Registry) RecordDiscovery(strategy string, found int) {
	if r == nil {
		return
	}
	strategy = labelOrUnknown(strategy)
	counter(&r.discoveryRuns, strategy).Add(1)
	counter(&r.discoveryFound, strategy).Add(int64(found))
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	counter(&r.eventPublished, eventKey(bus, eventType)).Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	counter(&r.eventDropped, eventKey(bus, eventType)).Add(1)
}

func (r *Registry) IncEventEviction() {
	if r == nil {
		return
	}
	r.eventEvictions.Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	value, _ := r.eventSubscribers.LoadOrStore(labelOrUnknown(bus), &subscriberCounts{})
	counts := value.(*subscriberCounts)
	counts.filtered.Store(int64(filtered))
	counts.unfiltered.Store(int64(unfiltered))
}

// Snapshot returns plain counter values keyed by metric name, for status endpoints and tests.
func (r *Registry) Snapshot() map[string]int64 {
	if r == nil {
		return nil
	}
	return map[string]int64{
		"log_lines_written":    r.logLinesWritten.Load(),
		"log_truncations":      r.logTruncations.Load(),
		"log_write_failures":   r.logWriteFailures.Load(),
		"watch_added":          r.watchAdded.Load(),
		"watch_removed":        r.watchRemoved.Load(),
		"watch_failures":       r.watchFailures.Load(),
		"watch_unwatch_errors": r.watchUnwatchErrors.Load(),
		"watcher_errors":       r.watchErrors.Load(),
		"files_created":        r.filesCreated.Load(),
		"datagrams_ignored":    r.datagramsIgnored.Load(),
		"probe_send_failures":  r.probeSendFailures.Load(),
		"discovery_runs":       sumCounters(&r.discoveryRuns),
		"discovery_servers":    sumCounters(&r.discoveryFound),
		"events_published":     sumCounters(&r.eventPublished),
		"events_dropped":       sumCounters(&r.eventDropped),
		"event_evictions":      r.eventEvictions.Load(),
	}
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "nascraft_log_lines_written_total", "Log lines appended to the log file", r.logLinesWritten.Load())
	writeCounter(writer, "nascraft_log_truncations_total", "Log file truncations on overflow", r.logTruncations.Load())
	writeCounter(writer, "nascraft_log_write_failures_total", "Dropped log writes", r.logWriteFailures.Load())
	writeCounter(writer, "nascraft_watch_added_total", "Directories added to the watch set", r.watchAdded.Load())
	writeCounter(writer, "nascraft_watch_removed_total", "Directories removed from the watch set", r.watchRemoved.Load())
	writeCounter(writer, "nascraft_watch_failures_total", "Failed watch registrations", r.watchFailures.Load())
	writeCounter(writer, "nascraft_watch_unwatch_errors_total", "Ignored unwatch errors", r.watchUnwatchErrors.Load())
	writeCounter(writer, "nascraft_watcher_errors_total", "Errors reported by the OS watcher", r.watchErrors.Load())
	writeCounter(writer, "nascraft_files_created_total", "File created notifications emitted", r.filesCreated.Load())
	writeCounter(writer, "nascraft_discovery_datagrams_ignored_total", "Malformed or mismatched discovery datagrams", r.datagramsIgnored.Load())
	writeCounter(writer, "nascraft_discovery_probe_send_failures_total", "Discovery probes that failed to send", r.probeSendFailures.Load())
	writeCounter(writer, "nascraft_event_subscribers_evicted_total", "Event subscribers evicted for falling behind", r.eventEvictions.Load())

	writeLabeled(writer, "nascraft_discovery_runs_total", "Discovery calls by strategy", "strategy", &r.discoveryRuns)
	writeLabeled(writer, "nascraft_discovery_servers_total", "Servers returned by discovery", "strategy", &r.discoveryFound)
	writeEventCounters(writer, "nascraft_events_published_total", "Events published on a bus", &r.eventPublished)
	writeEventCounters(writer, "nascraft_events_dropped_total", "Events dropped for slow subscribers", &r.eventDropped)

	buses := sortedKeys(&r.eventSubscribers)
	writeHelp(writer, "nascraft_event_subscribers", "Active event bus subscribers")
	fmt.Fprintln(writer, "# TYPE nascraft_event_subscribers gauge")
	for _, bus := range buses {
		value, _ := r.eventSubscribers.Load(bus)
		counts := value.(*subscriberCounts)
		label := formatLabel(bus)
		fmt.Fprintf(writer, "nascraft_event_subscribers{bus=%s,filtered=\"true\"} %d\n", label, counts.filtered.Load())
		fmt.Fprintf(writer, "nascraft_event_subscribers{bus=%s,filtered=\"false\"} %d\n", label, counts.unfiltered.Load())
	}

	return nil
}

func counter(values *sync.Map, key string) *atomic.Int64 {
	value, _ := values.LoadOrStore(key, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func sumCounters(values *sync.Map) int64 {
	var total int64
	values.Range(func(_, value any) bool {
		total += value.(*atomic.Int64).Load()
		return true
	})
	return total
}

func sortedKeys(values *sync.Map) []string {
	var keys []string
	values.Range(func(key, _ any) bool {
		if name, ok := key.(string); ok {
			keys = append(keys, name)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

func eventKey(bus, eventType string) string {
	return labelOrUnknown(bus) + "\x00" + labelOrUnknown(eventType)
}

func labelOrUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeLabeled(writer io.Writer, metric, help, label string, values *sync.Map) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	for _, key := range sortedKeys(values) {
		value, _ := values.Load(key)
		fmt.Fprintf(writer, "%s{%s=%s} %d\n", metric, label, formatLabel(key), value.(*atomic.Int64).Load())
	}
}

func writeEventCounters(writer io.Writer, metric, help string, values *sync.Map) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	for _, key := range sortedKeys(values) {
		value, _ := values.Load(key)
		bus, eventType, _ := strings.Cut(key, "\x00")
		fmt.Fprintf(writer, "%s{bus=%s,type=%s} %d\n", metric, formatLabel(bus), formatLabel(eventType), value.(*atomic.Int64).Load())
	}
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
