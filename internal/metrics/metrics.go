// Package metrics provides Prometheus metrics for the mesh simulator.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "muti_sim"
)

// Metrics contains all Prometheus metrics for a simulation.
type Metrics struct {
	// Clock and presence
	Tick             prometheus.Gauge
	PeersOnline      prometheus.Gauge
	PowerTransitions *prometheus.CounterVec

	// Message metrics
	MessagesSent      prometheus.Counter
	MessagesDelivered prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	MessagesInFlight  prometheus.Gauge
	Relays            prometheus.Counter
	DeliveryHops      prometheus.Histogram
	DeliveryLatency   prometheus.Histogram

	// Back-propagation metrics
	Backprops       *prometheus.CounterVec
	BackpropLatency prometheus.Histogram

	// PQ metrics
	KEMOperations       *prometheus.CounterVec
	SignatureOperations *prometheus.CounterVec
	PQLatency           *prometheus.HistogramVec
	Invites             *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// tickBuckets suits latencies measured in simulation ticks.
var tickBuckets = []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Clock and presence
		Tick: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tick",
			Help:      "Current simulation tick",
		}),
		PeersOnline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_online",
			Help:      "Number of peers that can currently receive",
		}),
		PowerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "power_transitions_total",
			Help:      "Total peer power state transitions by target state",
		}, []string{"state"}),

		// Message metrics
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total messages submitted for sending",
		}),
		MessagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Total messages delivered to their destination",
		}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total messages dropped by reason",
		}, []string{"reason"}),
		MessagesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "messages_in_flight",
			Help:      "Number of unresolved messages",
		}),
		Relays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Total packets stored by an intermediate peer",
		}),
		DeliveryHops: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_hops",
			Help:      "Histogram of hops travelled by delivered messages",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 16},
		}),
		DeliveryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_ticks",
			Help:      "Histogram of delivery latency in ticks",
			Buckets:   tickBuckets,
		}),

		// Back-propagation metrics
		Backprops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backprops_total",
			Help:      "Total finished back-propagations by outcome",
		}, []string{"outcome"}),
		BackpropLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backprop_latency_ticks",
			Help:      "Histogram of back-propagation latency in ticks",
			Buckets:   tickBuckets,
		}),

		// PQ metrics
		KEMOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kem_operations_total",
			Help:      "Total ML-KEM operations by operation and result",
		}, []string{"op", "result"}),
		SignatureOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_operations_total",
			Help:      "Total ML-DSA operations by operation and result",
		}, []string{"op", "result"}),
		PQLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pq_latency_microseconds",
			Help:      "Histogram of simulated PQ operation latency in microseconds",
			Buckets:   []float64{25, 50, 75, 100, 150, 200, 300, 500, 1000, 2500, 5000},
		}, []string{"op"}),
		Invites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invites_total",
			Help:      "Total invites by outcome",
		}, []string{"outcome"}),
	}

	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// SetTick records the current tick.
func (m *Metrics) SetTick(tick uint64) {
	m.Tick.Set(float64(tick))
}

// SetPeersOnline records the number of reachable peers.
func (m *Metrics) SetPeersOnline(count int) {
	m.PeersOnline.Set(float64(count))
}

// RecordPowerTransition records a peer entering state.
func (m *Metrics) RecordPowerTransition(state string) {
	m.PowerTransitions.WithLabelValues(state).Inc()
}

// RecordSent records a submitted message.
func (m *Metrics) RecordSent() {
	m.MessagesSent.Inc()
	m.MessagesInFlight.Inc()
}

// RecordDelivered records a delivery after hops and latency ticks.
func (m *Metrics) RecordDelivered(hops int, latencyTicks uint64) {
	m.MessagesDelivered.Inc()
	m.MessagesInFlight.Dec()
	m.DeliveryHops.Observe(float64(hops))
	m.DeliveryLatency.Observe(float64(latencyTicks))
}

// RecordDropped records a drop.
func (m *Metrics) RecordDropped(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
	m.MessagesInFlight.Dec()
}

// RecordRelay records a packet stored by an intermediate peer.
func (m *Metrics) RecordRelay() {
	m.Relays.Inc()
}

// RecordBackprop records a finished back-propagation.
func (m *Metrics) RecordBackprop(completed bool, latencyTicks uint64) {
	if !completed {
		m.Backprops.WithLabelValues("timed_out").Inc()
		return
	}
	m.Backprops.WithLabelValues("completed").Inc()
	m.BackpropLatency.Observe(float64(latencyTicks))
}

// RecordKEM records an ML-KEM operation ("encapsulate" or "decapsulate").
func (m *Metrics) RecordKEM(op string, ok bool, latencyUs uint64) {
	m.KEMOperations.WithLabelValues(op, result(ok)).Inc()
	m.PQLatency.WithLabelValues(op).Observe(float64(latencyUs))
}

// RecordSignature records an ML-DSA operation ("sign" or "verify").
func (m *Metrics) RecordSignature(op string, ok bool, latencyUs uint64) {
	m.SignatureOperations.WithLabelValues(op, result(ok)).Inc()
	m.PQLatency.WithLabelValues(op).Observe(float64(latencyUs))
}

// RecordInvite records an invite event ("created", "accepted" or "failed").
func (m *Metrics) RecordInvite(outcome string) {
	m.Invites.WithLabelValues(outcome).Inc()
}
