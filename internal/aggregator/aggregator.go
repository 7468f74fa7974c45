package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"metals_go/internal/domain"
	"metals_go/internal/infra"
)

// errModeSwitched aborts an in-flight retry loop when the aggregator was
// switched to store-only mid-backoff. Non-retriable so the loop exits at once.
type modeSwitchedError struct{}

func (modeSwitchedError) Error() string     { return "aggregator switched to store-only" }
func (modeSwitchedError) IsRetriable() bool { return false }

var errModeSwitched = modeSwitchedError{}

// Options configures a new Aggregator.
type Options struct {
	Primary        string
	Fallback       string
	RetryAttempts  int
	RetryBaseDelay time.Duration
	CacheTTL       time.Duration
}

// Aggregator orchestrates provider selection, retry and the fallback chain
// (primary provider, then fallback provider, then last-known store value).
// It exposes the stable query API used by the HTTP routes, the scheduler and
// the broadcaster.
type Aggregator struct {
	state     *State
	store     domain.QuoteStore
	providers map[string]domain.Provider
	cacheTTL  time.Duration
	logger    *slog.Logger
	metrics   *infra.Metrics
}

// New creates an aggregator over the given store and provider set.
func New(store domain.QuoteStore, providers map[string]domain.Provider, opts Options) *Aggregator {
	mode := ModeLive
	primary := opts.Primary
	if primary == infra.StoreOnly {
		mode = ModeStoreOnly
	}
	return &Aggregator{
		state:     NewState(primary, opts.Fallback, mode, opts.RetryAttempts, opts.RetryBaseDelay),
		store:     store,
		providers: providers,
		cacheTTL:  opts.CacheTTL,
		logger:    slog.Default().With("module", "aggregator"),
		metrics:   infra.GlobalMetrics,
	}
}

// State returns a consistent snapshot of the runtime provider state.
func (a *Aggregator) State() Snapshot {
	return a.state.Snapshot()
}

// Providers lists the configured provider names, sorted.
func (a *Aggregator) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveProvider returns the name callers should report as current: the
// primary provider, or "store-only" when network calls are disabled.
func (a *Aggregator) ActiveProvider() string {
	snap := a.state.Snapshot()
	if snap.Mode == ModeStoreOnly {
		return infra.StoreOnly
	}
	return snap.Primary
}

// SwitchProvider atomically reassigns the provider pair. name must be a
// configured provider or "store-only"; anything else returns a
// ConfigurationError and leaves the pair unchanged. Safe to call concurrently
// with in-flight GetQuote calls.
func (a *Aggregator) SwitchProvider(name string) (previous string, err error) {
	previous = a.ActiveProvider()

	if name == infra.StoreOnly {
		snap := a.state.Snapshot()
		a.state.setProviders(snap.Primary, snap.Fallback, ModeStoreOnly)
		a.logger.Info("provider switched", slog.String("from", previous), slog.String("to", name))
		return previous, nil
	}

	if _, ok := a.providers[name]; !ok {
		return previous, &domain.ConfigurationError{Name: name}
	}

	// The displaced primary becomes the fallback so the chain stays two-deep.
	fallback := a.state.Snapshot().Primary
	if fallback == name || fallback == "" {
		fallback = a.otherProvider(name)
	}
	a.state.setProviders(name, fallback, ModeLive)
	a.logger.Info("provider switched", slog.String("from", previous), slog.String("to", name))
	return previous, nil
}

func (a *Aggregator) otherProvider(name string) string {
	for candidate := range a.providers {
		if candidate != name {
			return candidate
		}
	}
	return ""
}

// GetQuote returns the current quote for an instrument/currency pair,
// walking the fallback chain on failure. Attempt order is deterministic:
// store-only short-circuit, freshness check, primary with bounded retry,
// fallback with the same policy, then the store regardless of freshness.
func (a *Aggregator) GetQuote(ctx context.Context, instrument domain.Instrument, currency string) (*domain.Quote, error) {
	snap := a.state.Snapshot()

	if snap.Mode == ModeStoreOnly {
		if q, found := a.store.Get(instrument, currency); found {
			return q, nil
		}
		return nil, &domain.NotFoundError{Instrument: instrument, Currency: currency}
	}

	if a.store.IsFresh(instrument, currency, a.cacheTTL) {
		if q, found := a.store.Get(instrument, currency); found {
			a.metrics.RecordCacheHit()
			return q, nil
		}
	}
	a.metrics.RecordCacheMiss()

	q, primaryErr := a.fetchLiveWithRetry(ctx, snap.Primary, instrument, currency, snap)
	if primaryErr == nil {
		a.persist(q)
		return q, nil
	}
	if errors.Is(primaryErr, errModeSwitched) {
		return a.storeOnlyGet(instrument, currency)
	}

	var fallbackErr error
	if snap.Fallback != "" && snap.Fallback != infra.StoreOnly {
		q, fallbackErr = a.fetchLiveWithRetry(ctx, snap.Fallback, instrument, currency, snap)
		if fallbackErr == nil {
			a.persist(q)
			return q, nil
		}
		if errors.Is(fallbackErr, errModeSwitched) {
			return a.storeOnlyGet(instrument, currency)
		}
	}

	// Stale is better than nothing.
	if q, found := a.store.Get(instrument, currency); found {
		a.metrics.RecordStoreFallback()
		a.logger.Warn("serving stale quote after provider exhaustion",
			slog.String("instrument", string(instrument)),
			slog.String("currency", currency),
			slog.Any("primary_error", primaryErr),
			slog.Any("fallback_error", fallbackErr),
		)
		return q, nil
	}

	return nil, &domain.FetchError{
		Instrument: instrument,
		Currency:   currency,
		Primary:    primaryErr,
		Fallback:   fallbackErr,
	}
}

func (a *Aggregator) storeOnlyGet(instrument domain.Instrument, currency string) (*domain.Quote, error) {
	if q, found := a.store.Get(instrument, currency); found {
		return q, nil
	}
	return nil, &domain.NotFoundError{Instrument: instrument, Currency: currency}
}

// fetchLiveWithRetry runs one provider through the configured retry policy.
// The mode is re-checked on every attempt so a concurrent switch to
// store-only halts the loop even mid-backoff.
func (a *Aggregator) fetchLiveWithRetry(ctx context.Context, name string, instrument domain.Instrument, currency string, snap Snapshot) (*domain.Quote, error) {
	provider, ok := a.providers[name]
	if !ok {
		return nil, &domain.ConfigurationError{Name: name}
	}

	var q *domain.Quote
	err := infra.Retry(ctx, snap.RetryAttempts, snap.RetryBaseDelay, func(attempt int) error {
		if a.state.Snapshot().Mode == ModeStoreOnly {
			return errModeSwitched
		}
		a.metrics.RecordProviderCall()
		got, ferr := provider.FetchLive(ctx, instrument, currency)
		if ferr != nil {
			a.metrics.RecordProviderError()
			a.logger.Warn("provider fetch failed",
				slog.String("provider", name),
				slog.String("instrument", string(instrument)),
				slog.Int("attempt", attempt),
				slog.Any("error", ferr),
			)
			return ferr
		}
		q = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (a *Aggregator) persist(q *domain.Quote) {
	if err := a.store.Put(q); err != nil {
		a.logger.Error("failed to persist quote", slog.String("key", q.Key()), slog.Any("error", err))
	}
}

// GetHistorical returns the quote for a past date: the store first, then the
// active provider chain. Historical rows are persisted like live ones.
func (a *Aggregator) GetHistorical(ctx context.Context, instrument domain.Instrument, currency string, date time.Time) (*domain.Quote, error) {
	if q, found := a.store.GetHistorical(instrument, currency, date); found {
		return q, nil
	}

	snap := a.state.Snapshot()
	if snap.Mode == ModeStoreOnly {
		return nil, &domain.NotFoundError{Instrument: instrument, Currency: currency}
	}

	var primaryErr, fallbackErr error
	for i, name := range []string{snap.Primary, snap.Fallback} {
		if name == "" || name == infra.StoreOnly {
			continue
		}
		provider, ok := a.providers[name]
		if !ok {
			continue
		}
		a.metrics.RecordProviderCall()
		q, err := provider.FetchHistorical(ctx, instrument, currency, date)
		if err == nil {
			a.persist(q)
			return q, nil
		}
		a.metrics.RecordProviderError()
		if i == 0 {
			primaryErr = err
		} else {
			fallbackErr = err
		}
	}

	if primaryErr == nil && fallbackErr == nil {
		return nil, &domain.NotFoundError{Instrument: instrument, Currency: currency}
	}
	return nil, &domain.FetchError{
		Instrument: instrument,
		Currency:   currency,
		Primary:    primaryErr,
		Fallback:   fallbackErr,
	}
}

// GetAllQuotes returns quotes for every supported instrument. When the active
// provider exposes a batch endpoint it is used as an optimization; on any
// batch failure the per-instrument chain produces the same result set.
func (a *Aggregator) GetAllQuotes(ctx context.Context, currency string) (map[domain.Instrument]*domain.Quote, error) {
	snap := a.state.Snapshot()

	if snap.Mode == ModeLive {
		if batch, ok := a.providers[snap.Primary].(domain.BatchProvider); ok {
			a.metrics.RecordProviderCall()
			quotes, err := batch.FetchAll(ctx, currency)
			if err == nil {
				result := make(map[domain.Instrument]*domain.Quote, len(quotes))
				for _, q := range quotes {
					a.persist(q)
					result[q.Instrument] = q
				}
				return result, nil
			}
			a.metrics.RecordProviderError()
			a.logger.Warn("batch fetch failed, falling back to per-instrument calls",
				slog.String("provider", snap.Primary), slog.Any("error", err))
		}
	}

	result := make(map[domain.Instrument]*domain.Quote, len(domain.AllInstruments))
	var lastErr error
	for _, instrument := range domain.AllInstruments {
		q, err := a.GetQuote(ctx, instrument, currency)
		if err != nil {
			lastErr = err
			continue
		}
		result[instrument] = q
	}

	if len(result) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}
