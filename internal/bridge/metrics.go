package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "bhyve"

// Command rejection reasons.
const (
	reasonInvalidTopic  = "invalid_topic"
	reasonMalformed     = "malformed"
	reasonValidation    = "validation"
	reasonStreamNotOpen = "stream_not_open"
	reasonSendFailed    = "send_failed"
)

// Metrics are the bridge's Prometheus counters.
type Metrics struct {
	CommandsSent     prometheus.Counter
	CommandsRejected *prometheus.CounterVec
	StreamMessages   prometheus.Counter
	Discoveries      *prometheus.CounterVec
	StreamReconnects prometheus.Counter
	PublishFailures  prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CommandsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_sent_total",
			Help:      "Zone commands sent to the cloud stream.",
		}),
		CommandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_rejected_total",
			Help:      "Zone commands dropped, by reason.",
		}, []string{"reason"}),
		StreamMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stream_messages_total",
			Help:      "Frames received from the cloud stream.",
		}),
		Discoveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "discoveries_total",
			Help:      "Device discovery runs, by result.",
		}, []string{"result"}),
		StreamReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stream_reconnects_total",
			Help:      "Attempts to reopen the cloud stream after a drop.",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publish_failures_total",
			Help:      "Bus publishes that failed or were dropped while offline.",
		}),
	}
}
