package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GianmarcoBramucci/cri/memory"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	live := 3
	m, err := New(reg, func() int { return live })
	require.NoError(t, err)

	m.ObserveQuery(OutcomeOK, 1200*time.Millisecond)
	m.ObserveQuery(OutcomeOK, 300*time.Millisecond)
	m.ObserveQuery(OutcomeError, time.Second)
	m.ObserveRetrieval(4)
	m.ObserveReset()
	m.ObserveHistory(memory.LoadReport{Anomalies: []memory.Anomaly{
		{Index: 0, Kind: memory.AnomalyOrphanAnswer},
		{Index: 3, Kind: memory.AnomalyOrphanAnswer},
		{Index: 5, Kind: memory.AnomalyEmptyContent},
	}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queries.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues(OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.anomalies.WithLabelValues(string(memory.AnomalyOrphanAnswer))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anomalies.WithLabelValues(string(memory.AnomalyEmptyContent))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets))

	// Only successful queries feed the latency histogram.
	assert.Equal(t, 1, testutil.CollectAndCount(m.queryDuration))

	live = 7
	n, err := testutil.GatherAndCount(reg, "cri_sessions_active")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "cri_sessions_active" {
			assert.Equal(t, 7.0, f.GetMetric()[0].GetGauge().GetValue())
		}
		if f.GetName() == "cri_query_duration_seconds" {
			assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, nil)
	require.NoError(t, err)

	_, err = New(reg, nil)
	assert.Error(t, err)
}
