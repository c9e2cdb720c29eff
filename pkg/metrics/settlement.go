package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts terminal payment outcomes by the trigger that won
// the settlement race, plus webhook rejections at the trust boundary.
type SettlementMetrics struct {
	confirmed        *prometheus.CounterVec
	failed           *prometheus.CounterVec
	webhookRejected  prometheus.Counter
	settlementNoOped prometheus.Counter
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	confirmed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_confirmed_total",
		Help: "Orders settled as completed, by winning trigger.",
	}, []string{"trigger"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_failed_total",
		Help: "Orders settled as failed, by winning trigger.",
	}, []string{"trigger"})
	webhookRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_rejected_total",
		Help: "Callback requests rejected at the IP allowlist.",
	})
	noOped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_noop_total",
		Help: "Settlement attempts that lost the race and no-oped.",
	})
	reg.MustRegister(confirmed, failed, webhookRejected, noOped)
	return &SettlementMetrics{
		confirmed:        confirmed,
		failed:           failed,
		webhookRejected:  webhookRejected,
		settlementNoOped: noOped,
	}
}

// IncConfirmed records a completed settlement won by the named trigger.
func (m *SettlementMetrics) IncConfirmed(trigger string) {
	if m == nil || m.confirmed == nil {
		return
	}
	m.confirmed.WithLabelValues(trigger).Inc()
}

// IncFailed records a failed settlement won by the named trigger.
func (m *SettlementMetrics) IncFailed(trigger string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(trigger).Inc()
}

// IncWebhookRejected records a trust-boundary rejection.
func (m *SettlementMetrics) IncWebhookRejected() {
	if m == nil || m.webhookRejected == nil {
		return
	}
	m.webhookRejected.Inc()
}

// IncNoOp records a settlement attempt that found a terminal state.
func (m *SettlementMetrics) IncNoOp() {
	if m == nil || m.settlementNoOped == nil {
		return
	}
	m.settlementNoOped.Inc()
}
