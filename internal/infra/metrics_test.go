package infra

import "testing"

func TestMetricsCounters(t *testing.T) {
	m := &Metrics{}

	m.RecordProviderCall()
	m.RecordProviderCall()
	m.RecordProviderError()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordStoreFallback()
	m.RecordBroadcast()

	snap := m.GetSnapshot()
	if snap.ProviderCalls != 2 {
		t.Errorf("expected 2 provider calls, got %d", snap.ProviderCalls)
	}
	if snap.ProviderErrors != 1 {
		t.Errorf("expected 1 provider error, got %d", snap.ProviderErrors)
	}
	if snap.CacheHits != 1 || snap.CacheMisses != 1 {
		t.Errorf("unexpected cache counters: %+v", snap)
	}
	if snap.StoreFallbacks != 1 || snap.BroadcastsSent != 1 {
		t.Errorf("unexpected fallback/broadcast counters: %+v", snap)
	}
}

func TestMetricsConnectionGauge(t *testing.T) {
	m := &Metrics{}

	m.IncrementConnections()
	m.IncrementConnections()
	m.DecrementConnections()

	if got := m.ActiveConnections(); got != 1 {
		t.Errorf("expected 1 active connection, got %d", got)
	}
	if snap := m.GetSnapshot(); snap.ActiveConnections != 1 {
		t.Errorf("snapshot gauge mismatch: %d", snap.ActiveConnections)
	}
}
