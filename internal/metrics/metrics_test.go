package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSubmission("correct")
	m.ObserveSubmission("correct")
	m.ObserveSubmission("quota_exhausted")
	m.ObserveRecomputeFailure("ranking")
	m.ObserveRebuild(10 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues("correct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("quota_exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecomputeFailures.WithLabelValues("ranking")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankingRebuilds))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSubmission("correct")
	m.ObserveRecomputeFailure("profile")
	m.ObserveRebuild(time.Second)
}
