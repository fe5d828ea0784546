// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the run labels (model, status, kind) onto Prometheus labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance
//     instead of exposing an HTTP scrape endpoint, because an enrichment
//     run is a short-lived batch process with nothing to scrape.
//
// The package intentionally contains all Prometheus-specific dependencies
// so that the rest of the project remains decoupled from Prometheus and
// can swap to alternative backends (e.g. Datadog) without changes to the
// core pipeline.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/mengysun/DataParasite/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	// Item-level metrics
	itemCounter  *prometheus.CounterVec // "parasite_items_total"
	itemDuration *prometheus.SummaryVec // "parasite_item_duration_seconds"
	itemCost     *prometheus.SummaryVec // "parasite_item_cost_usd"

	// Consumption metrics
	tokenCounter  *prometheus.CounterVec // "parasite_tokens_total"
	searchCounter *prometheus.CounterVec // "parasite_search_calls_total"

	// Run-level metrics
	runCounters map[string]*prometheus.CounterVec // runs/items/successes per run
	runDuration *prometheus.SummaryVec            // "parasite_run_duration_seconds"
	runCost     *prometheus.SummaryVec            // "parasite_run_cost_usd"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (typically the task name).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "parasite"
	}

	reg := prometheus.NewRegistry()
	objectives := map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

	itemCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parasite_items_total",
			Help: "Total processed items, partitioned by model and status.",
		},
		[]string{"model", "status"},
	)
	itemDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "parasite_item_duration_seconds",
			Help:       "Wall time per item in seconds, partitioned by model and status.",
			Objectives: objectives,
		},
		[]string{"model", "status"},
	)
	itemCost := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "parasite_item_cost_usd",
			Help:       "Dollar cost per item, partitioned by model and status.",
			Objectives: objectives,
		},
		[]string{"model", "status"},
	)
	tokenCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parasite_tokens_total",
			Help: "Token consumption per kind (input, output, cached).",
		},
		[]string{"model", "kind"},
	)
	searchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parasite_search_calls_total",
			Help: "Executed web search calls.",
		},
		[]string{"model"},
	)
	runCounters := map[string]*prometheus.CounterVec{}
	for name, help := range map[string]string{
		"parasite_runs_total":          "Completed enrichment runs.",
		"parasite_run_items_total":     "Items processed across runs.",
		"parasite_run_successes_total": "Items succeeded across runs.",
	} {
		runCounters[name] = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: name, Help: help},
			[]string{"model"},
		)
	}
	runDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "parasite_run_duration_seconds",
			Help:       "Wall time per run in seconds.",
			Objectives: objectives,
		},
		[]string{"model"},
	)
	runCost := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "parasite_run_cost_usd",
			Help:       "Total dollar cost per run.",
			Objectives: objectives,
		},
		[]string{"model"},
	)

	collectors := []prometheus.Collector{
		itemCounter, itemDuration, itemCost, tokenCounter, searchCounter, runDuration, runCost,
	}
	for _, c := range runCounters {
		collectors = append(collectors, c)
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		itemCounter:   itemCounter,
		itemDuration:  itemDuration,
		itemCost:      itemCost,
		tokenCounter:  tokenCounter,
		searchCounter: searchCounter,
		runCounters:   runCounters,
		runDuration:   runDuration,
		runCost:       runCost,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "parasite_items_total":
		if b.itemCounter == nil {
			return
		}
		b.itemCounter.WithLabelValues(labels["model"], labels["status"]).Add(delta)

	case "parasite_tokens_total":
		if b.tokenCounter == nil {
			return
		}
		b.tokenCounter.WithLabelValues(labels["model"], labels["kind"]).Add(delta)

	case "parasite_search_calls_total":
		if b.searchCounter == nil {
			return
		}
		b.searchCounter.WithLabelValues(labels["model"]).Add(delta)

	default:
		if c, ok := b.runCounters[name]; ok {
			c.WithLabelValues(labels["model"]).Add(delta)
		}
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	var (
		vec  *prometheus.SummaryVec
		vals []string
	)
	switch name {
	case "parasite_item_duration_seconds":
		vec, vals = b.itemDuration, []string{labels["model"], labels["status"]}
	case "parasite_item_cost_usd":
		vec, vals = b.itemCost, []string{labels["model"], labels["status"]}
	case "parasite_run_duration_seconds":
		vec, vals = b.runDuration, []string{labels["model"]}
	case "parasite_run_cost_usd":
		vec, vals = b.runCost, []string{labels["model"]}
	}
	if vec == nil {
		return
	}
	vec.WithLabelValues(vals...).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
