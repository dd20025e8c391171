package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for channel orchestration.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	failoversTotal    *prometheus.CounterVec
	reconnectsTotal   *prometheus.CounterVec
	healthChecksTotal *prometheus.CounterVec
	persistErrors     prometheus.Counter

	channelsTotal  prometheus.Gauge
	channelsActive prometheus.Gauge
}

// NewMetrics creates and registers the engine metrics.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zmux_channel_operations_total",
			Help: "Total number of channel operations",
		},
		[]string{"operation", "result"}, // result: success, error
	)

	m.failoversTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zmux_failovers_total",
			Help: "Total number of output failovers and restores",
		},
		[]string{"kind"}, // kind: trigger, restore
	)

	m.reconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zmux_output_reconnects_total",
			Help: "Total number of output reconnect attempts",
		},
		[]string{"result"},
	)

	m.healthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zmux_output_health_checks_total",
			Help: "Total number of per-output health checks",
		},
		[]string{"result"}, // result: healthy, unhealthy
	)

	m.persistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zmux_persist_errors_total",
			Help: "Total number of failed channel record writes",
		},
	)

	m.channelsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zmux_channels",
			Help: "Number of configured channels",
		},
	)

	m.channelsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zmux_channels_active",
			Help: "Number of channels in the ACTIVE state",
		},
	)
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.failoversTotal.Describe(ch)
	m.reconnectsTotal.Describe(ch)
	m.healthChecksTotal.Describe(ch)
	m.persistErrors.Describe(ch)
	m.channelsTotal.Describe(ch)
	m.channelsActive.Describe(ch)
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.failoversTotal.Collect(ch)
	m.reconnectsTotal.Collect(ch)
	m.healthChecksTotal.Collect(ch)
	m.persistErrors.Collect(ch)
	m.channelsTotal.Collect(ch)
	m.channelsActive.Collect(ch)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordOperation records the outcome of a public channel operation.
func (m *Metrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, result(err)).Inc()
}

// RecordFailover records a failover ("trigger") or a restore ("restore").
func (m *Metrics) RecordFailover(kind string) {
	if m == nil {
		return
	}
	m.failoversTotal.WithLabelValues(kind).Inc()
}

// RecordReconnect records one reconnect attempt.
func (m *Metrics) RecordReconnect(err error) {
	if m == nil {
		return
	}
	m.reconnectsTotal.WithLabelValues(result(err)).Inc()
}

// RecordHealthCheck records the verdict for one output.
func (m *Metrics) RecordHealthCheck(healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.healthChecksTotal.WithLabelValues("healthy").Inc()
		return
	}
	m.healthChecksTotal.WithLabelValues("unhealthy").Inc()
}

// RecordPersistError counts a failed store write.
func (m *Metrics) RecordPersistError() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

// SetChannels publishes the channel counts.
func (m *Metrics) SetChannels(total, active int) {
	if m == nil {
		return
	}
	m.channelsTotal.Set(float64(total))
	m.channelsActive.Set(float64(active))
}
