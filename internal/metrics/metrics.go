// Package metrics exposes Prometheus counters for the ingestion and
// categorization pipeline. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application's collectors in a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	scans        *prometheus.CounterVec
	scanDuration prometheus.Histogram
	transactions *prometheus.CounterVec
	prompts      *prometheus.CounterVec
	selections   *prometheus.CounterVec
	queueLength  prometheus.Gauge
	llmRequests  *prometheus.CounterVec
}

// New registers every collector in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		scans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beantalk_scans_total",
				Help: "Mailbox scans by result.",
			},
			[]string{"result"},
		),
		scanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "beantalk_scan_duration_seconds",
				Help:    "Duration of mailbox scans.",
				Buckets: prometheus.DefBuckets,
			},
		),
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beantalk_transactions_total",
				Help: "Transactions seen by ingestion, by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		prompts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beantalk_categorization_prompts_total",
				Help: "Categorization prompts by outcome.",
			},
			[]string{"outcome"},
		),
		selections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beantalk_category_selections_total",
				Help: "Category decisions received, categorized or skipped.",
			},
			[]string{"result"},
		),
		queueLength: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "beantalk_task_queue_length",
				Help: "Categorization tasks queued, including the one in flight.",
			},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beantalk_llm_requests_total",
				Help: "Category suggestion requests by provider and status.",
			},
			[]string{"provider", "status"},
		),
	}
}

// ObserveScan records a finished scan.
func (m *Metrics) ObserveScan(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.scans.WithLabelValues(result).Inc()
	m.scanDuration.Observe(d.Seconds())
}

// IncTransaction counts a transaction outcome such as "recorded" or "unresolved".
func (m *Metrics) IncTransaction(source, outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(source, outcome).Inc()
}

// IncPrompt counts a categorization prompt outcome.
func (m *Metrics) IncPrompt(outcome string) {
	if m == nil {
		return
	}
	m.prompts.WithLabelValues(outcome).Inc()
}

// IncSelection counts a category decision.
func (m *Metrics) IncSelection(skipped bool) {
	if m == nil {
		return
	}
	result := "categorized"
	if skipped {
		result = "skipped"
	}
	m.selections.WithLabelValues(result).Inc()
}

// SetQueueLength reports the task queue length.
func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

// IncLLMRequest counts a suggestion request.
func (m *Metrics) IncLLMRequest(provider string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.llmRequests.WithLabelValues(provider, status).Inc()
}
