package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestLatency records REST call latency by endpoint and status class.
	APIRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pellicule_api_request_latency_seconds",
		Help:    "REST call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "status"})

	// RealtimeEventsTotal counts realtime events by kind and direction (in, out, local).
	RealtimeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pellicule_realtime_events_total",
		Help: "Total realtime events by kind and direction",
	}, []string{"kind", "direction"})

	// RealtimeEventsDropped counts inbound events that were not dispatched.
	RealtimeEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pellicule_realtime_events_dropped_total",
		Help: "Total realtime events dropped by reason",
	}, []string{"reason"})

	// RealtimeSubscribers is the gauge of live channel subscriptions.
	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pellicule_realtime_subscribers",
		Help: "Number of live realtime channel subscriptions",
	})

	// ReconcileMutations counts optimistic mutations by kind and outcome.
	ReconcileMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pellicule_reconcile_mutations_total",
		Help: "Total optimistic mutations by kind and outcome",
	}, []string{"kind", "outcome"})

	// RelayConnections is the gauge of websocket clients connected to the relay.
	RelayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pellicule_relay_connections",
		Help: "Number of active relay websocket connections",
	})

	// RelayBackpressureDrops counts relay messages dropped due to backpressure by reason.
	RelayBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pellicule_relay_backpressure_drops_total",
		Help: "Total relay messages dropped due to backpressure",
	}, []string{"reason"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pellicule_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})
)

// TrackAPIRequest returns a function that records the call latency when given the final status label.
func TrackAPIRequest(endpoint string) func(status string) {
	start := time.Now()
	return func(status string) {
		APIRequestLatency.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	}
}

// RecordMutation increments the mutation counter.
func RecordMutation(kind, outcome string) {
	ReconcileMutations.WithLabelValues(kind, outcome).Inc()
}

// RecordEvent increments the realtime event counter.
func RecordEvent(kind, direction string) {
	RealtimeEventsTotal.WithLabelValues(kind, direction).Inc()
}

// RecordDrop increments the dropped event counter.
func RecordDrop(reason string) {
	RealtimeEventsDropped.WithLabelValues(reason).Inc()
}
