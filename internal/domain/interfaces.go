package domain

import (
	"context"
	"time"
)

// Provider defines the interface for upstream price-data sources. A client is
// pure translation: request construction, auth injection and response-shape
// mapping into Quote. Retry policy belongs to the aggregator.
type Provider interface {
	Name() string
	FetchLive(ctx context.Context, instrument Instrument, currency string) (*Quote, error)
	FetchHistorical(ctx context.Context, instrument Instrument, currency string, date time.Time) (*Quote, error)
}

// BatchProvider is implemented by providers with a single endpoint covering
// all instruments. The aggregator prefers it for GetAllQuotes; it is an
// optimization only, the per-instrument path must yield the same result set.
type BatchProvider interface {
	Provider
	FetchAll(ctx context.Context, currency string) ([]*Quote, error)
}

// QuoteStore defines the persistence layer for normalized quotes. Freshness
// is advisory metadata against a caller-supplied TTL; rows are retained until
// an explicit Cleanup.
type QuoteStore interface {
	Get(instrument Instrument, currency string) (*Quote, bool)
	GetHistorical(instrument Instrument, currency string, date time.Time) (*Quote, bool)
	Put(q *Quote) error
	IsFresh(instrument Instrument, currency string, maxAge time.Duration) bool
	Cleanup(horizon time.Duration) (int64, error)
}

// SyncLog is the append-only audit trail of scheduler runs.
type SyncLog interface {
	RecordSyncRun(run *SyncRun) error
	LastSyncRun() (*SyncRun, bool)
}
