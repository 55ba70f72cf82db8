package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"voice-bridge/internal/telephony"
)

// Metrics exports bridge activity. A nil *Metrics records nothing.
type Metrics struct {
	remoteEvents        *prometheus.CounterVec
	actions             *prometheus.CounterVec
	callsEnded          *prometheus.CounterVec
	transactionFailures *prometheus.CounterVec
	actionTimeouts      prometheus.Counter
	activeCalls         prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		remoteEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voice_bridge",
			Name:      "remote_events_total",
			Help:      "Remote call events received from the voice SDK",
		}, []string{"kind"}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voice_bridge",
			Name:      "native_actions_total",
			Help:      "Native actions resolved by the bridge",
		}, []string{"kind", "result"}),
		callsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voice_bridge",
			Name:      "calls_ended_total",
			Help:      "Calls torn down, by end reason",
		}, []string{"reason"}),
		transactionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voice_bridge",
			Name:      "native_request_failures_total",
			Help:      "Native requests the platform refused",
		}, []string{"op"}),
		actionTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "voice_bridge",
			Name:      "native_action_timeouts_total",
			Help:      "Native actions the platform reported as timed out",
		}),
		activeCalls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "voice_bridge",
			Name:      "active_calls",
			Help:      "Calls currently owned by the bridge (0 or 1)",
		}),
	}
}

func (m *Metrics) remoteEvent(kind telephony.CallEventKind) {
	if m == nil {
		return
	}
	m.remoteEvents.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) action(kind telephony.ActionKind, result telephony.ActionResult) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(string(kind), string(result)).Inc()
}

func (m *Metrics) ended(reason string) {
	if m == nil {
		return
	}
	m.callsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) requestFailed(op string) {
	if m == nil {
		return
	}
	m.transactionFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) timedOut() {
	if m == nil {
		return
	}
	m.actionTimeouts.Inc()
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.activeCalls.Set(float64(n))
}
