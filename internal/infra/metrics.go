package infra

import (
	"sync/atomic"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	providerCalls  atomic.Uint64
	providerErrors atomic.Uint64
	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64
	storeFallbacks atomic.Uint64
	broadcastsSent atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordProviderCall records one upstream provider invocation.
func (m *Metrics) RecordProviderCall() {
	m.providerCalls.Add(1)
}

// RecordProviderError records a failed provider invocation.
func (m *Metrics) RecordProviderError() {
	m.providerErrors.Add(1)
}

// RecordCacheHit records a fresh quote served from the store.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a stale or missing store entry.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordStoreFallback records a stale quote served after provider exhaustion.
func (m *Metrics) RecordStoreFallback() {
	m.storeFallbacks.Add(1)
}

// RecordBroadcast records one priceUpdate fan-out.
func (m *Metrics) RecordBroadcast() {
	m.broadcastsSent.Add(1)
}

// IncrementConnections increments active websocket connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active websocket connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// ActiveConnections returns the current connection gauge.
func (m *Metrics) ActiveConnections() int32 {
	return m.activeConnections.Load()
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	ProviderCalls     uint64 `json:"provider_calls"`
	ProviderErrors    uint64 `json:"provider_errors"`
	CacheHits         uint64 `json:"cache_hits"`
	CacheMisses       uint64 `json:"cache_misses"`
	StoreFallbacks    uint64 `json:"store_fallbacks"`
	BroadcastsSent    uint64 `json:"broadcasts_sent"`
	ActiveConnections int32  `json:"active_connections"`
}

// GetSnapshot returns a consistent-enough view for status endpoints and logs.
func (m *Metrics) GetSnapshot() Snapshot {
	return Snapshot{
		ProviderCalls:     m.providerCalls.Load(),
		ProviderErrors:    m.providerErrors.Load(),
		CacheHits:         m.cacheHits.Load(),
		CacheMisses:       m.cacheMisses.Load(),
		StoreFallbacks:    m.storeFallbacks.Load(),
		BroadcastsSent:    m.broadcastsSent.Load(),
		ActiveConnections: m.activeConnections.Load(),
	}
}
