package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveCycle("succeeded", "", time.Second)
	m.ObserveCycle("skipped", "fetch", time.Second)
	m.ObserveCycle("skipped", "fetch", time.Second)
	m.ObservePublish(202, true, time.Unix(1534323525, 0))
	m.ObservePublish(200, false, time.Unix(1534323555, 0))
	m.ObserveForwardError("mqtt")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("succeeded", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("skipped", "fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishResponses.WithLabelValues("200")))
	assert.Equal(t, 1534323525.0, testutil.ToFloat64(m.LastSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForwardErrors.WithLabelValues("mqtt")))
}

func TestDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle("succeeded", "", time.Second)
		m.ObservePublish(202, true, time.Now())
		m.ObserveForwardError("amqp")
	})
}
