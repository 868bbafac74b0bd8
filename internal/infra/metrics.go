package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ticksProcessed atomic.Uint64
	brokerCalls    atomic.Uint64
	ordersPlaced   atomic.Uint64
	errorsTotal    atomic.Uint64

	// Broker call latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	relayObservers atomic.Int32
	feedLive       atomic.Int32 // 1 = up, 0 = down
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTicks counts feed payloads absorbed into the cache.
func (m *Metrics) RecordTicks(n int) {
	m.ticksProcessed.Add(uint64(n))
}

// RecordBrokerCall records one paced broker call with its latency.
func (m *Metrics) RecordBrokerCall(latencyNs int64) {
	m.brokerCalls.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordOrderPlaced records one accepted order leg.
func (m *Metrics) RecordOrderPlaced() {
	m.ordersPlaced.Add(1)
}

// IncrementObservers increments the relay observer gauge by 1.
func (m *Metrics) IncrementObservers() {
	m.relayObservers.Add(1)
}

// DecrementObservers decrements the relay observer gauge by 1.
func (m *Metrics) DecrementObservers() {
	m.relayObservers.Add(-1)
}

// SetFeedLive sets the feed liveness gauge.
func (m *Metrics) SetFeedLive(up bool) {
	if up {
		m.feedLive.Store(1)
	} else {
		m.feedLive.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TicksProcessed uint64    `json:"ticks_processed"`
	BrokerCalls    uint64    `json:"broker_calls"`
	OrdersPlaced   uint64    `json:"orders_placed"`
	ErrorsTotal    uint64    `json:"errors_total"`
	AvgLatencyNs   int64     `json:"avg_latency_ns"`
	RelayObservers int32     `json:"relay_observers"`
	FeedLive       bool      `json:"feed_live"`
	Timestamp      time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TicksProcessed: m.ticksProcessed.Load(),
		BrokerCalls:    m.brokerCalls.Load(),
		OrdersPlaced:   m.ordersPlaced.Load(),
		ErrorsTotal:    m.errorsTotal.Load(),
		AvgLatencyNs:   avgLatency,
		RelayObservers: m.relayObservers.Load(),
		FeedLive:       m.feedLive.Load() == 1,
		Timestamp:      time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ticksProcessed.Store(0)
	m.brokerCalls.Store(0)
	m.ordersPlaced.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.relayObservers.Store(0)
	m.feedLive.Store(0)
}
