// Package metrics exposes Prometheus collectors for the query path.
//
// Collectors are registered on a caller-supplied Registerer, so tests and
// multiple servers in one process do not share global state.
package metrics

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GianmarcoBramucci/cri/memory"
)

// Query outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeBadRequest  = "bad_request"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Metrics holds the service collectors.
type Metrics struct {
	queries       *prometheus.CounterVec
	queryDuration prometheus.Histogram
	anomalies     *prometheus.CounterVec
	retrievalHits prometheus.Histogram
	resets        prometheus.Counter
}

// New creates and registers the collectors on reg. sessions reports the
// number of live sessions and backs the cri_sessions_active gauge; it may
// be nil.
func New(reg prometheus.Registerer, sessions func() int) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cri_queries_total",
			Help: "Queries handled, by outcome",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cri_query_duration_seconds",
			Help:    "End-to-end latency of answered queries",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cri_history_anomalies_total",
			Help: "Client history items skipped during reconstruction, by kind",
		}, []string{"kind"}),
		retrievalHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cri_retrieval_hits",
			Help:    "Passages retrieved per query",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 20},
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cri_session_resets_total",
			Help: "Session resets requested",
		}),
	}

	collectors := []prometheus.Collector{m.queries, m.queryDuration, m.anomalies, m.retrievalHits, m.resets}
	if sessions != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "cri_sessions_active",
			Help: "Sessions currently held in memory",
		}, func() float64 { return float64(sessions()) }))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register collector")
		}
	}
	return m, nil
}

// ObserveQuery counts a query and, when it succeeded, its latency.
func (m *Metrics) ObserveQuery(outcome string, elapsed time.Duration) {
	m.queries.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.queryDuration.Observe(elapsed.Seconds())
	}
}

// ObserveRetrieval records how many passages backed an answer.
func (m *Metrics) ObserveRetrieval(hits int) {
	m.retrievalHits.Observe(float64(hits))
}

// ObserveHistory counts the anomalies in a reconstruction report.
func (m *Metrics) ObserveHistory(report memory.LoadReport) {
	for _, a := range report.Anomalies {
		m.anomalies.WithLabelValues(string(a.Kind)).Inc()
	}
}

// ObserveReset counts a reset.
func (m *Metrics) ObserveReset() {
	m.resets.Inc()
}
