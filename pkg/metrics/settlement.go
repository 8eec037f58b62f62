package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks the settlement pipeline: transfers, top-ups, transitions and the signer queue.
type SettlementMetrics struct {
	transfers       *prometheus.CounterVec
	transferLatency *prometheus.HistogramVec
	topUps          *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	queueDepth      prometheus.Gauge
}

// NewSettlementMetrics registers the settlement metrics on reg. A nil registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	m := &SettlementMetrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfer attempts by strategy, asset and outcome.",
		}, []string{"strategy", "asset", "outcome"}),
		transferLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "End-to-end transfer duration including finality wait.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"strategy", "asset"}),
		topUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faucet_topups_total",
			Help:      "Signer funding top-up requests by outcome.",
		}, []string{"asset", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_transitions_total",
			Help:      "Settlement status transitions by direction and target status.",
		}, []string{"direction", "to"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signer_queue_depth",
			Help:      "Transfers waiting for the shared signer.",
		}),
	}
	reg.MustRegister(m.transfers, m.transferLatency, m.topUps, m.transitions, m.queueDepth)
	return m
}

// ObserveTransfer records one finished transfer attempt.
func (m *SettlementMetrics) ObserveTransfer(strategy, asset, outcome string, elapsed time.Duration) {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.WithLabelValues(normalizeLabel(strategy), normalizeLabel(asset), normalizeLabel(outcome)).Inc()
	m.transferLatency.WithLabelValues(normalizeLabel(strategy), normalizeLabel(asset)).Observe(elapsed.Seconds())
}

// IncTopUp counts a faucet request.
func (m *SettlementMetrics) IncTopUp(asset, outcome string) {
	if m == nil || m.topUps == nil {
		return
	}
	m.topUps.WithLabelValues(normalizeLabel(asset), normalizeLabel(outcome)).Inc()
}

// IncTransition counts a committed status change.
func (m *SettlementMetrics) IncTransition(direction, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(direction), normalizeLabel(to)).Inc()
}

// SetSignerQueueDepth implements chain.DepthObserver.
func (m *SettlementMetrics) SetSignerQueueDepth(depth int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
