// Package metrics exposes prometheus counters for guard decisions. All methods
// are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentinel"

// Metrics holds the guard's collectors, registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	attemptsRecorded *prometheus.CounterVec
	blockChecks      *prometheus.CounterVec
	blocksTriggered  *prometheus.CounterVec
	blocksCleared    *prometheus.CounterVec
	cacheErrors      *prometheus.CounterVec
	accessDecisions  *prometheus.CounterVec
	attemptsPurged   prometheus.Counter
	lookupSeconds    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, along with the go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		attemptsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_recorded_total",
				Help:      "Authentication attempts appended to the attempt log",
			},
			[]string{"success"},
		),
		blockChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "block_checks_total",
				Help:      "Block decisions by key kind, outcome and source",
			},
			[]string{"kind", "blocked", "source"},
		),
		blocksTriggered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocks_triggered_total",
				Help:      "Keys that crossed the failure threshold",
			},
			[]string{"kind"},
		),
		blocksCleared: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocks_cleared_total",
				Help:      "Block cache entries cleared by reason",
			},
			[]string{"kind", "reason"},
		),
		cacheErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Cache port failures that fell back to the attempt log",
			},
			[]string{"op"},
		),
		accessDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_decisions_total",
				Help:      "Access list resolutions by outcome and reason",
			},
			[]string{"allowed", "reason"},
		),
		attemptsPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_purged_total",
				Help:      "Attempt log rows removed by the retention purge",
			},
		),
		lookupSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_log_lookup_seconds",
				Help:      "Duration of block re-derivation against the attempt log",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"kind"},
		),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AttemptRecorded(success bool) {
	if m == nil {
		return
	}
	m.attemptsRecorded.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// BlockChecked counts one decision. source is "cache" or "log".
func (m *Metrics) BlockChecked(kind string, blocked bool, source string) {
	if m == nil {
		return
	}
	m.blockChecks.WithLabelValues(kind, strconv.FormatBool(blocked), source).Inc()
}

func (m *Metrics) BlockTriggered(kind string) {
	if m == nil {
		return
	}
	m.blocksTriggered.WithLabelValues(kind).Inc()
}

func (m *Metrics) BlockCleared(kind, reason string) {
	if m == nil {
		return
	}
	m.blocksCleared.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) CacheError(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) AccessDecision(allowed bool, reason string) {
	if m == nil {
		return
	}
	m.accessDecisions.WithLabelValues(strconv.FormatBool(allowed), reason).Inc()
}

func (m *Metrics) AttemptsPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.attemptsPurged.Add(float64(n))
}

// ObserveLookup records how long a re-derivation took
func (m *Metrics) ObserveLookup(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.lookupSeconds.WithLabelValues(kind).Observe(seconds)
}
