package models

import "time"

// Override sources.
const (
	SourceManual = "manual"
	SourceAuto   = "auto"
)

// Override is one active parameter override. The live override table is the
// only row-mutable state in the store; every change is also appended to the
// override history.
type Override struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutoApplyEvent records one automatic override application. Append-only.
type AutoApplyEvent struct {
	ID       int64     `json:"id,omitempty"`
	At       time.Time `json:"at"`
	Param    string    `json:"param"`
	OldValue float64   `json:"old_value"`
	NewValue float64   `json:"new_value"`
	Streak   int       `json:"streak"`
	Reason   string    `json:"reason"`
}

// Cancellation records one threshold violation that advanced a streak,
// with the sample context that triggered it. Append-only.
type Cancellation struct {
	ID     int64     `json:"id,omitempty"`
	At     time.Time `json:"at"`
	Param  string    `json:"param"`
	Streak int       `json:"streak"`
	Metric float64   `json:"metric"`
	Limit  float64   `json:"limit"`
	Bar    int64     `json:"bar"`
	Sample string    `json:"sample,omitempty"` // JSON-encoded sample context
}

// Suggestion is the per-parameter tuning state surfaced by /autosuggest.
type Suggestion struct {
	Param       string     `json:"param"`
	Streak      int        `json:"streak"`
	Limit       int        `json:"limit"`
	Effective   float64    `json:"effective"`
	Candidate   float64    `json:"candidate"`
	Ready       bool       `json:"ready"`
	Blocked     string     `json:"blocked,omitempty"` // cooldown | daily_cap | at_bound
	LastApplied *time.Time `json:"last_applied,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}
