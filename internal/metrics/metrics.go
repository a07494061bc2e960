package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Registry struct {
	runsStarted   atomic.Int64
	runsSucceeded atomic.Int64
	runsFailed    atomic.Int64
	runsCancelled atomic.Int64

	validationsPassed atomic.Int64
	validationsFailed atomic.Int64

	bpaAnalyses    atomic.Int64
	backupsCreated atomic.Int64
	backupsPruned  atomic.Int64

	activities sync.Map
	apiCalls   sync.Map
	events     sync.Map
	eventSubs  sync.Map
}

type activityStats struct {
	count         atomic.Int64
	failures      atomic.Int64
	retries       atomic.Int64
	durationNanos atomic.Int64
}

type apiStats struct {
	count         atomic.Int64
	failures      atomic.Int64
	throttled     atomic.Int64
	durationNanos atomic.Int64
}

type eventStats struct {
	published atomic.Int64
	dropped   atomic.Int64
}

type subscriberCounts struct {
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncRunStarted() {
	if r == nil {
		return
	}
	r.runsStarted.Add(1)
}

func (r *Registry) IncRunSucceeded() {
	if r == nil {
		return
	}
	r.runsSucceeded.Add(1)
}

func (r *Registry) IncRunFailed() {
	if r == nil {
		return
	}
	r.runsFailed.Add(1)
}

func (r *Registry) IncRunCancelled() {
	if r == nil {
		return
	}
	r.runsCancelled.Add(1)
}

func (r *Registry) IncValidation(passed bool) {
	if r == nil {
		return
	}
	if passed {
		r.validationsPassed.Add(1)
		return
	}
	r.validationsFailed.Add(1)
}

func (r *Registry) IncBPAAnalysis() {
	if r == nil {
		return
	}
	r.bpaAnalyses.Add(1)
}

func (r *Registry) IncBackupCreated() {
	if r == nil {
		return
	}
	r.backupsCreated.Add(1)
}

func (r *Registry) AddBackupsPruned(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.backupsPruned.Add(int64(n))
}

func (r *Registry) RecordActivity(name string, duration time.Duration, err error, attempt int32) {
	if r == nil {
		return
	}
	if strings.TrimSpace(name) == "" {
		name = "unknown"
	}
	stats := r.activityStats(name)
	stats.count.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
	if err != nil {
		stats.failures.Add(1)
	}
	if attempt > 1 {
		stats.retries.Add(1)
	}
}

func (r *Registry) RecordAPICall(operation string, duration time.Duration, status int) {
	if r == nil {
		return
	}
	if strings.TrimSpace(operation) == "" {
		operation = "unknown"
	}
	stats := r.apiCallStats(operation)
	stats.count.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
	if status >= 400 {
		stats.failures.Add(1)
	}
	if status == http.StatusTooManyRequests {
		stats.throttled.Add(1)
	}
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventStats(bus, eventType).published.Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventStats(bus, eventType).dropped.Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	value, _ := r.eventSubs.LoadOrStore(bus, &subscriberCounts{})
	counts := value.(*subscriberCounts)
	counts.filtered.Store(int64(filtered))
	counts.unfiltered.Store(int64(unfiltered))
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "fabrik_runs_started_total", "Total pipeline runs started", r.runsStarted.Load())
	writeCounter(writer, "fabrik_runs_succeeded_total", "Total pipeline runs succeeded", r.runsSucceeded.Load())
	writeCounter(writer, "fabrik_runs_failed_total", "Total pipeline runs failed", r.runsFailed.Load())
	writeCounter(writer, "fabrik_runs_cancelled_total", "Total pipeline runs cancelled", r.runsCancelled.Load())
	writeCounter(writer, "fabrik_validations_passed_total", "Definition validations passed", r.validationsPassed.Load())
	writeCounter(writer, "fabrik_validations_failed_total", "Definition validations failed", r.validationsFailed.Load())
	writeCounter(writer, "fabrik_bpa_analyses_total", "BPA analyses performed", r.bpaAnalyses.Load())
	writeCounter(writer, "fabrik_backups_created_total", "Model backups created", r.backupsCreated.Load())
	writeCounter(writer, "fabrik_backups_pruned_total", "Model backups pruned", r.backupsPruned.Load())

	activityNames := r.activityNames()
	sort.Strings(activityNames)

	writeHelp(writer, "fabrik_activity_duration_seconds", "Activity duration in seconds")
	fmt.Fprintln(writer, "# TYPE fabrik_activity_duration_seconds summary")
	writeHelp(writer, "fabrik_activity_failures_total", "Activity failures")
	fmt.Fprintln(writer, "# TYPE fabrik_activity_failures_total counter")
	writeHelp(writer, "fabrik_activity_retries_total", "Activity retries")
	fmt.Fprintln(writer, "# TYPE fabrik_activity_retries_total counter")

	for _, name := range activityNames {
		stats := r.activityStats(name)
		label := formatLabel(name)
		durationSeconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "fabrik_activity_duration_seconds_sum{activity=%s} %.6f\n", label, durationSeconds)
		fmt.Fprintf(writer, "fabrik_activity_duration_seconds_count{activity=%s} %d\n", label, stats.count.Load())
		fmt.Fprintf(writer, "fabrik_activity_failures_total{activity=%s} %d\n", label, stats.failures.Load())
		fmt.Fprintf(writer, "fabrik_activity_retries_total{activity=%s} %d\n", label, stats.retries.Load())
	}

	operations := r.apiOperations()
	sort.Strings(operations)

	writeHelp(writer, "fabrik_api_duration_seconds", "Fabric API call duration in seconds")
	fmt.Fprintln(writer, "# TYPE fabrik_api_duration_seconds summary")
	writeHelp(writer, "fabrik_api_failures_total", "Fabric API call failures")
	fmt.Fprintln(writer, "# TYPE fabrik_api_failures_total counter")
	writeHelp(writer, "fabrik_api_throttled_total", "Fabric API calls throttled")
	fmt.Fprintln(writer, "# TYPE fabrik_api_throttled_total counter")

	for _, operation := range operations {
		stats := r.apiCallStats(operation)
		label := formatLabel(operation)
		durationSeconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "fabrik_api_duration_seconds_sum{operation=%s} %.6f\n", label, durationSeconds)
		fmt.Fprintf(writer, "fabrik_api_duration_seconds_count{operation=%s} %d\n", label, stats.count.Load())
		fmt.Fprintf(writer, "fabrik_api_failures_total{operation=%s} %d\n", label, stats.failures.Load())
		fmt.Fprintf(writer, "fabrik_api_throttled_total{operation=%s} %d\n", label, stats.throttled.Load())
	}

	eventKeys := r.eventKeys()
	sort.Strings(eventKeys)

	writeHelp(writer, "fabrik_events_published_total", "Events published per bus and type")
	fmt.Fprintln(writer, "# TYPE fabrik_events_published_total counter")
	writeHelp(writer, "fabrik_events_dropped_total", "Events dropped per bus and type")
	fmt.Fprintln(writer, "# TYPE fabrik_events_dropped_total counter")

	for _, key := range eventKeys {
		bus, eventType, ok := splitEventKey(key)
		if !ok {
			continue
		}
		stats := r.eventStats(bus, eventType)
		busLabel := formatLabel(bus)
		typeLabel := formatLabel(eventType)
		fmt.Fprintf(writer, "fabrik_events_published_total{bus=%s,type=%s} %d\n", busLabel, typeLabel, stats.published.Load())
		fmt.Fprintf(writer, "fabrik_events_dropped_total{bus=%s,type=%s} %d\n", busLabel, typeLabel, stats.dropped.Load())
	}

	busNames := r.eventBusNames()
	sort.Strings(busNames)

	writeHelp(writer, "fabrik_event_subscribers", "Current subscribers per bus")
	fmt.Fprintln(writer, "# TYPE fabrik_event_subscribers gauge")

	for _, bus := range busNames {
		value, ok := r.eventSubs.Load(bus)
		if !ok {
			continue
		}
		counts := value.(*subscriberCounts)
		busLabel := formatLabel(bus)
		fmt.Fprintf(writer, "fabrik_event_subscribers{bus=%s,kind=\"filtered\"} %d\n", busLabel, counts.filtered.Load())
		fmt.Fprintf(writer, "fabrik_event_subscribers{bus=%s,kind=\"unfiltered\"} %d\n", busLabel, counts.unfiltered.Load())
	}

	return nil
}

func (r *Registry) activityStats(name string) *activityStats {
	value, _ := r.activities.LoadOrStore(name, &activityStats{})
	return value.(*activityStats)
}

func (r *Registry) apiCallStats(operation string) *apiStats {
	value, _ := r.apiCalls.LoadOrStore(operation, &apiStats{})
	return value.(*apiStats)
}

func (r *Registry) eventStats(bus, eventType string) *eventStats {
	value, _ := r.events.LoadOrStore(bus+"\x00"+eventType, &eventStats{})
	return value.(*eventStats)
}

func (r *Registry) eventKeys() []string {
	if r == nil {
		return nil
	}
	var keys []string
	r.events.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			keys = append(keys, name)
		}
		return true
	})
	return keys
}

func (r *Registry) eventBusNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.eventSubs.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func splitEventKey(key string) (bus, eventType string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '\x00' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

func (r *Registry) activityNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.activities.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func (r *Registry) apiOperations() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.apiCalls.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
