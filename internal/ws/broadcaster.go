package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"metals_go/internal/domain"
	"metals_go/internal/infra"
)

// QuoteSource supplies the broadcaster's periodic refreshes. The broadcaster
// never polls providers directly; it goes through the aggregator so the
// fallback chain and persistence apply to its fetches too.
type QuoteSource interface {
	GetAllQuotes(ctx context.Context, currency string) (map[domain.Instrument]*domain.Quote, error)
}

// Options configures a Broadcaster.
type Options struct {
	Currency     string
	Interval     time.Duration
	ThresholdPct decimal.Decimal // minimum move, in percent, to trigger a broadcast
}

// Broadcaster refreshes quotes on its own cadence and fans out priceUpdate
// frames to subscribers whose instruments moved beyond the threshold.
type Broadcaster struct {
	hub    *Hub
	source QuoteSource
	opts   Options

	mu        sync.RWMutex
	current   map[domain.Instrument]*domain.Quote
	baselines map[domain.Instrument]decimal.Decimal // price at last broadcast

	logger  *slog.Logger
	metrics *infra.Metrics
}

// NewBroadcaster wires a broadcaster to its hub and quote source. It also
// installs the hub's initial-snapshot provider.
func NewBroadcaster(hub *Hub, source QuoteSource, opts Options) *Broadcaster {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	b := &Broadcaster{
		hub:       hub,
		source:    source,
		opts:      opts,
		current:   make(map[domain.Instrument]*domain.Quote),
		baselines: make(map[domain.Instrument]decimal.Decimal),
		logger:    slog.Default().With("module", "broadcaster"),
		metrics:   infra.GlobalMetrics,
	}
	hub.SetSnapshot(b.snapshotFrame)
	return b
}

// Run refreshes immediately, then on every tick until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.refresh(ctx)

	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("broadcaster stopped")
			return
		case <-ticker.C:
			b.refresh(ctx)
		}
	}
}

// refresh pulls current quotes and broadcasts if anything moved beyond the
// threshold since the last broadcast.
func (b *Broadcaster) refresh(ctx context.Context) {
	quotes, err := b.source.GetAllQuotes(ctx, b.opts.Currency)
	if err != nil {
		b.logger.Warn("broadcast refresh failed", slog.Any("error", err))
		return
	}
	if len(quotes) == 0 {
		return
	}

	changes := b.applyQuotes(quotes)
	if len(changes) == 0 {
		return
	}

	update := priceUpdate{
		Type:      msgPriceUpdate,
		Data:      b.currentState(),
		Changes:   changes,
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(update)
	if err != nil {
		b.logger.Error("failed to marshal price update", slog.Any("error", err))
		return
	}

	changed := make([]domain.Instrument, 0, len(changes))
	for _, ch := range changes {
		changed = append(changed, ch.Instrument)
	}

	b.hub.Broadcast(payload, changed)
	b.metrics.RecordBroadcast()
	b.logger.Info("price update broadcast",
		slog.Int("changes", len(changes)),
		slog.Int("subscribers", b.hub.Count()),
	)
}

// applyQuotes updates the current-state map and returns the instruments that
// moved beyond the threshold against their last-broadcast baseline. An
// instrument seen for the first time sets its baseline without emitting a
// change; the connect-time snapshot covers initial state.
func (b *Broadcaster) applyQuotes(quotes map[domain.Instrument]*domain.Quote) []priceChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	var changes []priceChange
	for instrument, q := range quotes {
		b.current[instrument] = q

		baseline, seen := b.baselines[instrument]
		if !seen || baseline.IsZero() {
			b.baselines[instrument] = q.Price
			continue
		}

		pct := q.Price.Sub(baseline).Div(baseline).Mul(decimal.NewFromInt(100))
		if pct.Abs().LessThanOrEqual(b.opts.ThresholdPct) {
			continue
		}

		direction := "up"
		if pct.IsNegative() {
			direction = "down"
		}
		changes = append(changes, priceChange{
			Instrument:    instrument,
			OldPrice:      baseline,
			NewPrice:      q.Price,
			ChangePercent: pct,
			Direction:     direction,
		})
		b.baselines[instrument] = q.Price
	}
	return changes
}

// currentState copies the full known quote map, so an update frame always
// carries every instrument, not just the fetched subset.
func (b *Broadcaster) currentState() map[domain.Instrument]*domain.Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[domain.Instrument]*domain.Quote, len(b.current))
	for instrument, q := range b.current {
		out[instrument] = q
	}
	return out
}

// snapshotFrame renders the current known quotes for a new connection.
func (b *Broadcaster) snapshotFrame() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.current) == 0 {
		return nil
	}

	update := priceUpdate{
		Type:      msgPriceUpdate,
		Data:      b.current,
		Changes:   []priceChange{},
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return nil
	}
	return payload
}
