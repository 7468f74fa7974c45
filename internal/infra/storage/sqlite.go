package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"metals_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage is the durable quote store backed by pure-Go SQLite. Writes are
// idempotent upserts keyed by (instrument, currency, observed date, provider,
// is_historical); concurrency safety is delegated to SQLite transactions.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database at path and runs migrations.
func NewStorage(path string) (*Storage, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Quote{}, &domain.SyncRun{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Quote Operations
// ======================================================================================

// quoteKeyColumns is the dedup key of a quote row.
var quoteKeyColumns = []clause.Column{
	{Name: "instrument"},
	{Name: "currency"},
	{Name: "observed_date"},
	{Name: "provider"},
	{Name: "is_historical"},
}

// Put upserts a quote. A repeated write for the same key updates price and
// derived fields in place (last write wins).
func (s *Storage) Put(q *domain.Quote) error {
	q.NormalizeKey()
	return s.db.Clauses(clause.OnConflict{
		Columns: quoteKeyColumns,
		DoUpdates: clause.AssignmentColumns([]string{
			"price", "open", "high", "low", "close",
			"change_abs", "change_pct", "per_gram_by_purity",
			"observed_at", "updated_at",
		}),
	}).Create(q).Error
}

// Get returns the latest non-historical quote for an instrument/currency pair.
func (s *Storage) Get(instrument domain.Instrument, currency string) (*domain.Quote, bool) {
	var q domain.Quote
	err := s.db.
		Where("instrument = ? AND currency = ? AND is_historical = ?", instrument, currency, false).
		Order("observed_at DESC").
		First(&q).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("quote lookup failed", slog.Any("error", err))
		}
		return nil, false
	}
	return &q, true
}

// GetHistorical returns the stored historical quote for a specific date.
func (s *Storage) GetHistorical(instrument domain.Instrument, currency string, date time.Time) (*domain.Quote, bool) {
	var q domain.Quote
	err := s.db.
		Where("instrument = ? AND currency = ? AND is_historical = ? AND observed_date = ?",
			instrument, currency, true, date.Format("2006-01-02")).
		First(&q).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("historical quote lookup failed", slog.Any("error", err))
		}
		return nil, false
	}
	return &q, true
}

// IsFresh reports whether the latest stored quote is younger than maxAge.
// Freshness is advisory: the caller (aggregator) owns the TTL policy.
func (s *Storage) IsFresh(instrument domain.Instrument, currency string, maxAge time.Duration) bool {
	q, found := s.Get(instrument, currency)
	if !found {
		return false
	}
	return q.Age(time.Now()) <= maxAge
}

// Cleanup removes quotes observed before the retention horizon. Returns the
// number of rows deleted.
func (s *Storage) Cleanup(horizon time.Duration) (int64, error) {
	cutoff := time.Now().Add(-horizon).Unix()
	res := s.db.Where("observed_at < ?", cutoff).Delete(&domain.Quote{})
	return res.RowsAffected, res.Error
}

// ======================================================================================
// Sync Run Audit Log
// ======================================================================================

// RecordSyncRun appends a completed run to the audit log.
func (s *Storage) RecordSyncRun(run *domain.SyncRun) error {
	return s.db.Create(run).Error
}

// LastSyncRun returns the most recently started run, if any.
func (s *Storage) LastSyncRun() (*domain.SyncRun, bool) {
	var run domain.SyncRun
	err := s.db.Order("started_at DESC").First(&run).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("sync run lookup failed", slog.Any("error", err))
		}
		return nil, false
	}
	return &run, true
}
