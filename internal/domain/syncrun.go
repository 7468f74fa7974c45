package domain

import "time"

// SyncTrigger records what started a sync run.
type SyncTrigger string

const (
	SyncTriggerScheduled SyncTrigger = "scheduled"
	SyncTriggerStartup   SyncTrigger = "startup"
	SyncTriggerManual    SyncTrigger = "manual"
)

// SyncResult is the outcome of one per-instrument fetch inside a run.
type SyncResult struct {
	Instrument Instrument `json:"instrument"`
	OK         bool       `json:"ok"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
}

// SyncRun records one scheduled refresh attempt. Appended to the audit log,
// never mutated after completion.
type SyncRun struct {
	ID         string       `gorm:"primaryKey;size:36" json:"id"`
	Trigger    SyncTrigger  `gorm:"size:16" json:"trigger"`
	Provider   string       `gorm:"size:32" json:"provider"`
	Currency   string       `gorm:"size:8" json:"currency"`
	StartedAt  time.Time    `gorm:"index" json:"started_at"`
	DurationMS int64        `json:"duration_ms"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Results    []SyncResult `gorm:"serializer:json" json:"results"`
	CreatedAt  time.Time    `json:"-"`
}

// Duration returns the recorded run duration.
func (r *SyncRun) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}
