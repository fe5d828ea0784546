// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from enrichment runs.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and
//     duration/amount style observations.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no
//     real backend is configured.
//   - Concrete systems (Prometheus Pushgateway, Datadog) live in
//     subpackages; the rest of the codebase depends only on this
//     interface.
package metrics

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/amount style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordItem records one finished item: outcome count, wall time, and
// dollar cost, all labeled by model and status ("success"/"failed").
func RecordItem(model, status string, durationSeconds, costUSD float64) {
	lbls := Labels{"model": model, "status": status}
	backend.IncCounter("parasite_items_total", 1, lbls)
	backend.ObserveHistogram("parasite_item_duration_seconds", durationSeconds, lbls)
	backend.ObserveHistogram("parasite_item_cost_usd", costUSD, lbls)
}

// RecordTokens adds per-call token and search-tool consumption.
// Zero and negative deltas are dropped.
func RecordTokens(model string, input, output, cached, searches int) {
	kinds := []struct {
		kind string
		n    int
	}{
		{"input", input},
		{"output", output},
		{"cached", cached},
	}
	for _, k := range kinds {
		if k.n <= 0 {
			continue
		}
		backend.IncCounter("parasite_tokens_total", float64(k.n), Labels{
			"model": model,
			"kind":  k.kind,
		})
	}
	if searches > 0 {
		backend.IncCounter("parasite_search_calls_total", float64(searches), Labels{
			"model": model,
		})
	}
}

// RecordRun records the end-of-batch summary.
func RecordRun(model string, processed, succeeded int, totalCost, elapsedSeconds float64) {
	lbls := Labels{"model": model}
	backend.IncCounter("parasite_runs_total", 1, lbls)
	backend.IncCounter("parasite_run_items_total", float64(processed), lbls)
	backend.IncCounter("parasite_run_successes_total", float64(succeeded), lbls)
	backend.ObserveHistogram("parasite_run_duration_seconds", elapsedSeconds, lbls)
	backend.ObserveHistogram("parasite_run_cost_usd", totalCost, lbls)
}
