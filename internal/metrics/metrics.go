package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the reader's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec
	PublishResponses *prometheus.CounterVec
	ForwardErrors    *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	LastSuccess      prometheus.Gauge
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "solarlog_cycles_total", Help: "Poll cycles by result and failing phase"},
			[]string{"status", "phase"},
		),
		PublishResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "solarlog_publish_responses_total", Help: "Ingress API responses by HTTP status code"},
			[]string{"code"},
		),
		ForwardErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "solarlog_forward_errors_total", Help: "Failed reading fan-outs by sink"},
			[]string{"sink"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "solarlog_cycle_duration_seconds", Help: "Duration of fetch, normalize and publish", Buckets: prometheus.DefBuckets},
		),
		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "solarlog_last_success_timestamp_seconds", Help: "Unix time of the last accepted publish"},
		),
	}

	for _, c := range []prometheus.Collector{m.CyclesTotal, m.PublishResponses, m.ForwardErrors, m.CycleDuration, m.LastSuccess} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCycle records the result of one cycle
func (m *Metrics) ObserveCycle(status, phase string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status, phase).Inc()
	m.CycleDuration.Observe(duration.Seconds())
}

// ObservePublish records an ingress API response
func (m *Metrics) ObservePublish(statusCode int, accepted bool, at time.Time) {
	if m == nil {
		return
	}
	m.PublishResponses.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	if accepted {
		m.LastSuccess.Set(float64(at.Unix()))
	}
}

// ObserveForwardError records a failed fan-out
func (m *Metrics) ObserveForwardError(sink string) {
	if m == nil {
		return
	}
	m.ForwardErrors.WithLabelValues(sink).Inc()
}
