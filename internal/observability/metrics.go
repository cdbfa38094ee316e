// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Assessment metrics
	AssessmentsTotal  *prometheus.CounterVec
	RiskScore         *prometheus.GaugeVec
	MarketUtilization *prometheus.GaugeVec
	FindingsTotal     *prometheus.CounterVec

	// Snapshot metrics
	SnapshotFetchLatency *prometheus.HistogramVec
	CacheHits            prometheus.Counter
	CacheMisses          prometheus.Counter
	CacheEntries         prometheus.Gauge

	// Simulation metrics
	SimulationsTotal *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
	CycleDuration       prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cometguard"
	}

	return &Metrics{
		// Assessment metrics
		AssessmentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "assessments_total",
			Help:      "Total number of market assessments by status",
		}, []string{"market", "status"}),
		RiskScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "risk_score",
			Help:      "Latest composite risk score per market (0-100)",
		}, []string{"market"}),
		MarketUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "market_utilization",
			Help:      "Latest observed borrow utilization per market",
		}, []string{"market"}),
		FindingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "findings_total",
			Help:      "Total number of risk findings by severity and factor",
		}, []string{"severity", "factor"}),

		// Snapshot metrics
		SnapshotFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "fetch_duration_seconds",
			Help:      "Market snapshot fetch latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"market"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "cache_hits_total",
			Help:      "Total number of snapshot cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "cache_misses_total",
			Help:      "Total number of snapshot cache misses",
		}),
		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "cache_entries",
			Help:      "Current number of cached snapshots",
		}),

		// Simulation metrics
		SimulationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "simulations_total",
			Help:      "Total number of simulation scenarios run by kind and status",
		}, []string{"scenario", "status"}),

		// Health metrics
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_cycle_timestamp_seconds",
			Help:      "Unix timestamp of the last fully successful assessment cycle",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full assessment cycle across all markets",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAssessment records the outcome of one market assessment.
func (m *Metrics) ObserveAssessment(market string, score int, err error) {
	if err != nil {
		m.AssessmentsTotal.WithLabelValues(market, "error").Inc()
		return
	}
	m.AssessmentsTotal.WithLabelValues(market, "ok").Inc()
	m.RiskScore.WithLabelValues(market).Set(float64(score))
}

// ObserveFinding counts one risk finding.
func (m *Metrics) ObserveFinding(severity, factor string) {
	m.FindingsTotal.WithLabelValues(severity, factor).Inc()
}

// CacheObserver projects monotonic cache totals onto the Prometheus
// counters. The cache reports running totals, so each observation advances
// the counters by the delta since the previous one.
type CacheObserver struct {
	metrics    *Metrics
	lastHits   uint64
	lastMisses uint64
}

// NewCacheObserver creates an observer bound to the metrics set.
func (m *Metrics) NewCacheObserver() *CacheObserver {
	return &CacheObserver{metrics: m}
}

// Observe records the latest cache totals.
func (o *CacheObserver) Observe(entries int, hits, misses uint64) {
	o.metrics.CacheEntries.Set(float64(entries))
	if hits >= o.lastHits {
		o.metrics.CacheHits.Add(float64(hits - o.lastHits))
	}
	if misses >= o.lastMisses {
		o.metrics.CacheMisses.Add(float64(misses - o.lastMisses))
	}
	o.lastHits = hits
	o.lastMisses = misses
}
