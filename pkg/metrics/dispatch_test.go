package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			require.Len(t, mf.Metric, 1)
			return mf.Metric[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestDispatchMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)

	m.IncOfferSent()
	m.IncOfferSent()
	m.IncOfferFailed()
	m.IncAccept()
	m.IncReject()
	m.IncTimeout()
	m.IncExhausted()

	assert.Equal(t, float64(2), counterValue(t, reg, "dispatch_offers_sent_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "dispatch_offers_failed_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "dispatch_accepts_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "dispatch_rejects_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "dispatch_timeouts_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "dispatch_exhausted_total"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *DispatchMetrics
	m.IncOfferSent()
	m.IncAccept()

	var c *CronJobMetrics
	c.ObserveDuration("sweep", time.Second)
	c.IncSuccess("sweep")
	c.IncFailure("sweep")
}

func TestCronJobMetricsGather(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	metrics.ObserveDuration("expired-offer", 120*time.Millisecond)
	metrics.IncSuccess("expired-offer")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == "job_success" {
			found = mf
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, float64(1), found.Metric[0].GetCounter().GetValue())
	assert.Equal(t, "expired-offer", found.Metric[0].GetLabel()[0].GetValue())
}
