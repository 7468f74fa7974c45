package app

import (
	"log/slog"
	"time"

	"metals_go/internal/aggregator"
	"metals_go/internal/domain"
	"metals_go/internal/infra"
	"metals_go/internal/infra/goldapi"
	"metals_go/internal/infra/metalsdev"
	"metals_go/internal/infra/storage"
	"metals_go/internal/scheduler"
	"metals_go/internal/ws"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config      *infra.Config
	Storage     *storage.Storage
	Aggregator  *aggregator.Aggregator
	Scheduler   *scheduler.Scheduler
	Hub         *ws.Hub
	Broadcaster *ws.Broadcaster
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger, storage,
// provider clients, aggregator, scheduler and broadcaster.
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	// 4. Provider clients
	providers := map[string]domain.Provider{
		infra.ProviderGoldAPI:   goldapi.NewClient(cfg.Providers.GoldAPI),
		infra.ProviderMetalsDev: metalsdev.NewClient(cfg.Providers.MetalsDev),
	}

	// 5. Aggregator
	b.Aggregator = aggregator.New(store, providers, aggregator.Options{
		Primary:        cfg.Aggregator.Primary,
		Fallback:       cfg.Aggregator.Fallback,
		RetryAttempts:  cfg.Aggregator.RetryAttempts,
		RetryBaseDelay: time.Duration(cfg.Aggregator.RetryBaseDelayMS) * time.Millisecond,
		CacheTTL:       time.Duration(cfg.Aggregator.CacheTTLSec) * time.Second,
	})
	slog.Info("✅ Aggregator ready",
		slog.String("primary", cfg.Aggregator.Primary),
		slog.String("fallback", cfg.Aggregator.Fallback),
	)

	// 6. Sync scheduler (forced refresh through a dedicated provider)
	syncProvider, ok := providers[cfg.Sync.Provider]
	if !ok {
		return &domain.ConfigurationError{Name: cfg.Sync.Provider}
	}
	b.Scheduler = scheduler.New(syncProvider, store, scheduler.Options{
		Schedule:         cfg.Sync.Schedule,
		Currency:         cfg.Sync.Currency,
		Retries:          cfg.Sync.PerInstrumentRetries,
		RetryBaseDelay:   time.Duration(cfg.Aggregator.RetryBaseDelayMS) * time.Millisecond,
		FreshnessHorizon: time.Duration(cfg.Sync.FreshnessHorizonHrs) * time.Hour,
		Retention:        time.Duration(cfg.Sync.RetentionDays) * 24 * time.Hour,
	})

	// 7. Broadcaster
	b.Hub = ws.NewHub(
		time.Duration(cfg.Broadcast.HeartbeatTimeoutSec)*time.Second,
		cfg.Broadcast.MaxConnections,
	)
	b.Broadcaster = ws.NewBroadcaster(b.Hub, b.Aggregator, ws.Options{
		Currency:     cfg.Broadcast.Currency,
		Interval:     time.Duration(cfg.Broadcast.IntervalSec) * time.Second,
		ThresholdPct: cfg.Broadcast.ChangeThresholdPct,
	})

	return nil
}
