// Package coremetrics exposes komodo-core's Prometheus metrics: poll
// outcomes, alert transitions, and stack action results. Not specified by
// spec.md (observability is explicitly out of scope, spec.md §1), but the
// ambient stack still needs the teacher's metrics-endpoint idiom.
package coremetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector komodo-core registers.
type Metrics struct {
	pollsTotal        *prometheus.CounterVec
	alertsTotal       *prometheus.CounterVec
	stackActionsTotal *prometheus.CounterVec
	serversTracked    prometheus.Gauge
	buildInfo         *prometheus.GaugeVec
	registry          *prometheus.Registry
}

// New creates and registers every collector against a fresh registry so
// metrics never leak across App instances in tests.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		pollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "komodo_core_polls_total",
				Help: "Total Periphery polls by server state outcome.",
			},
			[]string{"state"},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "komodo_core_alerts_total",
				Help: "Total alert samples processed by variant and level.",
			},
			[]string{"variant", "level"},
		),
		stackActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "komodo_core_stack_actions_total",
				Help: "Total stack actions executed by action and result.",
			},
			[]string{"action", "result"},
		),
		serversTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "komodo_core_servers_tracked",
			Help: "Number of servers currently registered for polling.",
		}),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "komodo_core_build_info",
				Help: "Build metadata, value is always 1.",
			},
			[]string{"version"},
		),
		registry: reg,
	}

	reg.MustRegister(m.pollsTotal, m.alertsTotal, m.stackActionsTotal, m.serversTracked, m.buildInfo)
	m.buildInfo.WithLabelValues(version).Set(1)
	return m
}

// Handler returns the HTTP handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePoll(state string) {
	m.pollsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveAlert(variant, level string) {
	m.alertsTotal.WithLabelValues(variant, level).Inc()
}

func (m *Metrics) ObserveStackAction(action, result string) {
	m.stackActionsTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) SetServersTracked(n int) {
	m.serversTracked.Set(float64(n))
}
