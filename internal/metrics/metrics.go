package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry accumulates hub counters and renders them in Prometheus text
// exposition format for /api/metrics.
type Registry struct {
	statesCreated  atomic.Int64
	statesClosed   atomic.Int64
	sendsSkipped   atomic.Int64
	dispatchJobs   atomic.Int64
	dispatchPanics atomic.Int64
	tools          sync.Map
}

type toolStats struct {
	sends    atomic.Int64
	failures atomic.Int64
	bytes    atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncStateCreated() {
	if r == nil {
		return
	}
	r.statesCreated.Add(1)
}

func (r *Registry) IncStateClosed() {
	if r == nil {
		return
	}
	r.statesClosed.Add(1)
}

func (r *Registry) IncSendSkipped() {
	if r == nil {
		return
	}
	r.sendsSkipped.Add(1)
}

func (r *Registry) IncDispatchJob() {
	if r == nil {
		return
	}
	r.dispatchJobs.Add(1)
}

func (r *Registry) IncDispatchPanic() {
	if r == nil {
		return
	}
	r.dispatchPanics.Add(1)
}

func (r *Registry) RecordSend(tool string, size int, err error) {
	if r == nil {
		return
	}
	if strings.TrimSpace(tool) == "" {
		tool = "unknown"
	}
	stats := r.toolStats(tool)
	stats.sends.Add(1)
	stats.bytes.Add(int64(size))
	if err != nil {
		stats.failures.Add(1)
	}
}

func (r *Registry) WritePrometheus(w io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(w, "aideck_states_created_total", "Total states created", r.statesCreated.Load())
	writeCounter(w, "aideck_states_closed_total", "Total states closed", r.statesClosed.Load())
	writeCounter(w, "aideck_sends_skipped_total", "Sends skipped because nothing rendered", r.sendsSkipped.Load())
	writeCounter(w, "aideck_dispatch_jobs_total", "Dispatch queue jobs processed", r.dispatchJobs.Load())
	writeCounter(w, "aideck_dispatch_panics_total", "Dispatch actions recovered from panic", r.dispatchPanics.Load())

	names := r.toolNames()
	sort.Strings(names)

	writeHelp(w, "aideck_sends_total", "Messages delivered per tool")
	fmt.Fprintln(w, "# TYPE aideck_sends_total counter")
	writeHelp(w, "aideck_send_failures_total", "Failed deliveries per tool")
	fmt.Fprintln(w, "# TYPE aideck_send_failures_total counter")
	writeHelp(w, "aideck_send_bytes_total", "Bytes delivered per tool")
	fmt.Fprintln(w, "# TYPE aideck_send_bytes_total counter")

	for _, name := range names {
		stats := r.toolStats(name)
		label := formatLabel(name)
		fmt.Fprintf(w, "aideck_sends_total{tool=%s} %d\n", label, stats.sends.Load())
		fmt.Fprintf(w, "aideck_send_failures_total{tool=%s} %d\n", label, stats.failures.Load())
		fmt.Fprintf(w, "aideck_send_bytes_total{tool=%s} %d\n", label, stats.bytes.Load())
	}

	return nil
}

func (r *Registry) toolStats(name string) *toolStats {
	value, _ := r.tools.LoadOrStore(name, &toolStats{})
	return value.(*toolStats)
}

func (r *Registry) toolNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.tools.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func writeHelp(w io.Writer, metric, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n", metric, help)
}

func writeCounter(w io.Writer, metric, help string, value int64) {
	writeHelp(w, metric, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", metric)
	fmt.Fprintf(w, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return "\"" + escaped + "\""
}
