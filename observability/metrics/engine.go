// Package metrics exposes Prometheus collectors for the lendboard engine.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lendboard/lending/health"
	"lendboard/lending/market"
	"lendboard/lending/portfolio"
)

type EngineMetrics struct {
	evaluations *prometheus.CounterVec
	entries     *prometheus.CounterVec
	duration    prometheus.Histogram
	usedLimit   *prometheus.HistogramVec
	overLimit   *prometheus.CounterVec
	snapshots   *prometheus.CounterVec
	subscribers prometheus.Gauge
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// Engine returns the lazily registered engine metrics.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = newEngineMetrics()
		prometheus.MustRegister(engineRegistry.collectors()...)
	})
	return engineRegistry
}

func newEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lendboard",
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Portfolio evaluations by chain and completeness.",
		}, []string{"chain", "outcome"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lendboard",
			Subsystem: "engine",
			Name:      "entries_total",
			Help:      "Market entries evaluated by chain and state.",
		}, []string{"chain", "state"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lendboard",
			Subsystem: "engine",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent deriving totals and health from one snapshot.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		usedLimit: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lendboard",
			Subsystem: "engine",
			Name:      "used_limit_ratio",
			Help:      "Distribution of defined used-limit ratios.",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1, 1.25},
		}, []string{"chain"}),
		overLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lendboard",
			Subsystem: "engine",
			Name:      "over_limit_total",
			Help:      "Evaluations where the borrow value exceeded the limit.",
		}, []string{"chain"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lendboard",
			Subsystem: "ingest",
			Name:      "snapshots_total",
			Help:      "Snapshots received by chain and result.",
		}, []string{"chain", "result"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lendboard",
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Open view stream connections.",
		}),
	}
}

func (m *EngineMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.evaluations,
		m.entries,
		m.duration,
		m.usedLimit,
		m.overLimit,
		m.snapshots,
		m.subscribers,
	}
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}

// ObserveEvaluation records one derived view.
func (m *EngineMetrics) ObserveEvaluation(chainID uint64, totals portfolio.Totals, h health.AccountHealth, elapsed time.Duration) {
	if m == nil {
		return
	}
	chain := chainLabel(chainID)
	outcome := "complete"
	if !totals.Complete() {
		outcome = "partial"
	}
	m.evaluations.WithLabelValues(chain, outcome).Inc()
	for state, count := range map[market.State]int{
		market.StateExists:    totals.Included,
		market.StateLoading:   totals.Pending,
		market.StateNotExists: totals.Missing,
		market.StateInvalid:   totals.Invalid,
	} {
		if count > 0 {
			m.entries.WithLabelValues(chain, state.String()).Add(float64(count))
		}
	}
	m.duration.Observe(elapsed.Seconds())
	if ratio, ok := h.UsedLimit().Float(); ok {
		m.usedLimit.WithLabelValues(chain).Observe(ratio)
	}
	if h.OverLimit() {
		m.overLimit.WithLabelValues(chain).Inc()
	}
}

// RecordSnapshot counts an ingested snapshot by result.
func (m *EngineMetrics) RecordSnapshot(chainID uint64, result string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(chainLabel(chainID), result).Inc()
}

// AddSubscribers adjusts the open stream gauge.
func (m *EngineMetrics) AddSubscribers(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}
