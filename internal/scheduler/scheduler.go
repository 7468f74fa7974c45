package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"metals_go/internal/domain"
	"metals_go/internal/infra"
)

// SyncStore is what the scheduler needs from persistence: quote writes,
// freshness probes, retention cleanup and the run audit log.
type SyncStore interface {
	domain.QuoteStore
	domain.SyncLog
}

// Options configures a new Scheduler.
type Options struct {
	Schedule         string // cron expression, default daily
	Currency         string
	Retries          int
	RetryBaseDelay   time.Duration
	FreshnessHorizon time.Duration // startup probe window, default 24h
	Retention        time.Duration // quote retention horizon
}

// Scheduler runs a recurring forced refresh of every supported instrument
// through a designated sync provider, regardless of the aggregator's serving
// mode. Each per-instrument fetch retries independently; one instrument's
// failure never aborts the run for the others.
type Scheduler struct {
	provider domain.Provider
	store    SyncStore
	opts     Options

	cron    *cron.Cron
	entryID cron.EntryID
	runMu   sync.Mutex // serializes runs; an overlapping trigger is skipped
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// New creates a scheduler that refreshes through the given sync provider.
func New(provider domain.Provider, store SyncStore, opts Options) *Scheduler {
	if opts.Schedule == "" {
		opts.Schedule = "0 6 * * *"
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.FreshnessHorizon <= 0 {
		opts.FreshnessHorizon = 24 * time.Hour
	}
	return &Scheduler{
		provider: provider,
		store:    store,
		opts:     opts,
		cron:     cron.New(),
		logger:   slog.Default().With("module", "sync_scheduler"),
	}
}

// Start registers the cron entry and, if the store holds no quote newer than
// the freshness horizon for any instrument, triggers an immediate out-of-band
// run before the first scheduled tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	id, err := s.cron.AddFunc(s.opts.Schedule, func() {
		s.runOnce(s.ctx, uuid.NewString(), domain.SyncTriggerScheduled)
	})
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()

	if s.storeIsCold() {
		s.logger.Info("store is cold, triggering startup sync")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runOnce(s.ctx, uuid.NewString(), domain.SyncTriggerStartup)
		}()
	}

	s.logger.Info("sync scheduler started",
		slog.String("schedule", s.opts.Schedule),
		slog.String("provider", s.provider.Name()),
		slog.Time("next_run", s.NextRunTime()),
	)
	return nil
}

// Stop halts the cron loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// NextRunTime returns the next scheduled tick.
func (s *Scheduler) NextRunTime() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// LastRun returns the most recent completed run from the audit log.
func (s *Scheduler) LastRun() (*domain.SyncRun, bool) {
	return s.store.LastSyncRun()
}

// TriggerNow starts an out-of-band run and returns its identifier
// immediately; the run proceeds in the background.
func (s *Scheduler) TriggerNow() string {
	runID := uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOnce(s.ctx, runID, domain.SyncTriggerManual)
	}()
	return runID
}

// storeIsCold reports whether no instrument has a quote newer than the
// freshness horizon.
func (s *Scheduler) storeIsCold() bool {
	for _, instrument := range domain.AllInstruments {
		if s.store.IsFresh(instrument, s.opts.Currency, s.opts.FreshnessHorizon) {
			return false
		}
	}
	return true
}

// runOnce performs one full refresh. Runs are serialized; if one is already
// in flight the trigger is dropped rather than queued.
func (s *Scheduler) runOnce(ctx context.Context, runID string, trigger domain.SyncTrigger) *domain.SyncRun {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.runMu.TryLock() {
		s.logger.Warn("sync run already in flight, skipping", slog.String("trigger", string(trigger)))
		return nil
	}
	defer s.runMu.Unlock()

	started := time.Now()
	run := &domain.SyncRun{
		ID:        runID,
		Trigger:   trigger,
		Provider:  s.provider.Name(),
		Currency:  s.opts.Currency,
		StartedAt: started,
		Results:   make([]domain.SyncResult, 0, len(domain.AllInstruments)),
	}

	for _, instrument := range domain.AllInstruments {
		result := s.syncInstrument(ctx, instrument)
		run.Results = append(run.Results, result)
		if result.OK {
			run.Succeeded++
		} else {
			run.Failed++
		}
	}

	run.DurationMS = time.Since(started).Milliseconds()
	if err := s.store.RecordSyncRun(run); err != nil {
		s.logger.Error("failed to record sync run", slog.String("run_id", run.ID), slog.Any("error", err))
	}

	if s.opts.Retention > 0 {
		if deleted, err := s.store.Cleanup(s.opts.Retention); err != nil {
			s.logger.Warn("retention cleanup failed", slog.Any("error", err))
		} else if deleted > 0 {
			s.logger.Info("retention cleanup", slog.Int64("deleted", deleted))
		}
	}

	s.logger.Info("sync run completed",
		slog.String("run_id", run.ID),
		slog.String("trigger", string(trigger)),
		slog.Int("succeeded", run.Succeeded),
		slog.Int("failed", run.Failed),
		slog.Int64("duration_ms", run.DurationMS),
	)
	return run
}

// syncInstrument fetches and persists one instrument with independent retry.
func (s *Scheduler) syncInstrument(ctx context.Context, instrument domain.Instrument) domain.SyncResult {
	result := domain.SyncResult{Instrument: instrument}

	err := infra.Retry(ctx, s.opts.Retries, s.opts.RetryBaseDelay, func(attempt int) error {
		result.Attempts = attempt
		q, ferr := s.provider.FetchLive(ctx, instrument, s.opts.Currency)
		if ferr != nil {
			return ferr
		}
		return s.store.Put(q)
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.OK = true
	return result
}
