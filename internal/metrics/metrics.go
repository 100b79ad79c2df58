// Package metrics holds the prometheus collectors of the send pipeline and the
// transaction monitor. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowwallet"

type Metrics struct {
	SendTotal          *prometheus.CounterVec
	SendDuration       *prometheus.HistogramVec
	BroadcastAttempts  *prometheus.CounterVec
	MonitorEventsTotal *prometheus.CounterVec
	MonitorPollErrors  *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer to
// expose them on the default handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SendTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_total",
			Help:      "Sends by chain and outcome (the failed stage, or ok).",
		}, []string{"chain", "result"}),
		SendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Wall time of a send from create to broadcast.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain"}),
		BroadcastAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_attempts_total",
			Help:      "Broadcast attempts by chain and result.",
		}, []string{"chain", "result"}),
		MonitorEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_events_total",
			Help:      "Transactions emitted by the monitor.",
		}, []string{"network", "direction"}),
		MonitorPollErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_poll_errors_total",
			Help:      "Failed monitor polls.",
		}, []string{"network"}),
	}
}

func (m *Metrics) ObserveSend(chain, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.SendTotal.WithLabelValues(chain, result).Inc()
	m.SendDuration.WithLabelValues(chain).Observe(took.Seconds())
}

func (m *Metrics) ObserveBroadcast(chain string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BroadcastAttempts.WithLabelValues(chain, result).Inc()
}

func (m *Metrics) ObserveEvent(network, direction string) {
	if m == nil {
		return
	}
	m.MonitorEventsTotal.WithLabelValues(network, direction).Inc()
}

func (m *Metrics) ObservePollError(network string) {
	if m == nil {
		return
	}
	m.MonitorPollErrors.WithLabelValues(network).Inc()
}
