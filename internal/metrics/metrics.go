package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the scoring core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Submissions        *prometheus.CounterVec
	RecomputeFailures  *prometheus.CounterVec
	RankingRebuilds    prometheus.Counter
	RankingRebuildTime prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scoring",
				Name:      "submissions_total",
				Help:      "Answer submissions by outcome",
			},
			[]string{"result"},
		),
		RecomputeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scoring",
				Name:      "recompute_failures_total",
				Help:      "Derived state refreshes that failed after a committed mutation",
			},
			[]string{"scope"},
		),
		RankingRebuilds: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scoring",
				Name:      "ranking_rebuilds_total",
				Help:      "Completed ranking rebuilds",
			},
		),
		RankingRebuildTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "scoring",
				Name:      "ranking_rebuild_duration_seconds",
				Help:      "Ranking rebuild duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// ObserveSubmission counts one submission outcome (correct, incorrect or a
// rejection reason).
func (m *Metrics) ObserveSubmission(result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result).Inc()
}

// ObserveRecomputeFailure counts a failed aggregate refresh.
func (m *Metrics) ObserveRecomputeFailure(scope string) {
	if m == nil {
		return
	}
	m.RecomputeFailures.WithLabelValues(scope).Inc()
}

// ObserveRebuild records a finished ranking rebuild.
func (m *Metrics) ObserveRebuild(took time.Duration) {
	if m == nil {
		return
	}
	m.RankingRebuilds.Inc()
	m.RankingRebuildTime.Observe(took.Seconds())
}
