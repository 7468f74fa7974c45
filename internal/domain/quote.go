package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is a tracked precious metal, identified by its canonical symbol.
type Instrument string

const (
	InstrumentGold      Instrument = "gold"
	InstrumentSilver    Instrument = "silver"
	InstrumentPlatinum  Instrument = "platinum"
	InstrumentPalladium Instrument = "palladium"
)

// AllInstruments lists every supported instrument in canonical order.
var AllInstruments = []Instrument{
	InstrumentGold,
	InstrumentSilver,
	InstrumentPlatinum,
	InstrumentPalladium,
}

// ParseInstrument normalizes and validates an instrument symbol.
func ParseInstrument(s string) (Instrument, error) {
	in := Instrument(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllInstruments {
		if in == known {
			return in, nil
		}
	}
	return "", &ValidationError{Field: "instrument", Msg: "unsupported instrument: " + s}
}

// IsSupportedInstrument reports whether s is a known instrument symbol.
func IsSupportedInstrument(s string) bool {
	_, err := ParseInstrument(s)
	return err == nil
}

// NormalizeCurrency validates an ISO currency code and returns it uppercased.
func NormalizeCurrency(s string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(s))
	if len(c) != 3 {
		return "", &ValidationError{Field: "currency", Msg: "currency must be a 3-letter ISO code: " + s}
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", &ValidationError{Field: "currency", Msg: "currency must be a 3-letter ISO code: " + s}
		}
	}
	return c, nil
}

// ParseDate parses a YYYY-MM-DD historical-quote date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Msg: "date must be YYYY-MM-DD: " + s}
	}
	return d, nil
}

// Purity is a gold purity grade (karat).
type Purity string

const (
	Purity24K Purity = "24k"
	Purity22K Purity = "22k"
	Purity18K Purity = "18k"
)

// Quote is a normalized price observation for one instrument/currency pair.
// A row is unique per (instrument, currency, observed date, provider,
// is_historical); repeated writes for the same key update in place.
type Quote struct {
	ID           uint       `gorm:"primaryKey" json:"-"`
	Instrument   Instrument `gorm:"uniqueIndex:idx_quote_key;size:16" json:"instrument"`
	Currency     string     `gorm:"uniqueIndex:idx_quote_key;size:8" json:"currency"`
	ObservedDate string     `gorm:"uniqueIndex:idx_quote_key;size:10" json:"-"`
	Provider     string     `gorm:"uniqueIndex:idx_quote_key;size:32" json:"provider"`
	IsHistorical bool       `gorm:"uniqueIndex:idx_quote_key" json:"is_historical"`

	Price     decimal.Decimal  `json:"price"`
	Open      *decimal.Decimal `json:"open,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Low       *decimal.Decimal `json:"low,omitempty"`
	Close     *decimal.Decimal `json:"close,omitempty"`
	ChangeAbs *decimal.Decimal `json:"change_abs,omitempty"`
	ChangePct *decimal.Decimal `json:"change_pct,omitempty"`

	// Per-gram prices by purity grade. Populated for gold only.
	PerGramByPurity map[Purity]decimal.Decimal `gorm:"serializer:json" json:"per_gram_by_purity,omitempty"`

	// ObservedAt is the upstream timestamp in seconds since epoch.
	ObservedAt int64 `gorm:"index" json:"observed_at"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// ObservedTime returns ObservedAt as a time.Time.
func (q *Quote) ObservedTime() time.Time {
	return time.Unix(q.ObservedAt, 0).UTC()
}

// Age returns how old the observation is relative to now.
func (q *Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedTime())
}

// Key returns the dedup key components as a single string, mainly for logs.
func (q *Quote) Key() string {
	kind := "live"
	if q.IsHistorical {
		kind = "historical"
	}
	return string(q.Instrument) + "/" + q.Currency + "/" + q.ObservedDate + "/" + q.Provider + "/" + kind
}

// NormalizeKey derives ObservedDate from ObservedAt. Must be called before
// persisting a quote so the uniqueness key is complete.
func (q *Quote) NormalizeKey() {
	if q.ObservedDate == "" {
		q.ObservedDate = q.ObservedTime().Format("2006-01-02")
	}
}
