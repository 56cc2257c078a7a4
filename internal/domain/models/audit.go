package models

import "time"

// Footprint kinds written by the controller itself. Callers of the footprint
// API may use their own kinds.
const (
	FootprintAutoApply    = "auto_apply"
	FootprintManualChange = "manual_override"
	FootprintTrendFlip    = "trend_flip"
	FootprintBadBar       = "bad_bar"
	FootprintSnapshot     = "snapshot"
)

// Footprint is an append-only audit record of one notable decision or state
// transition, with a free-text reasoning field.
type Footprint struct {
	ID   int64     `json:"id,omitempty"`
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`
	Note string    `json:"note"`
	Data string    `json:"data,omitempty"` // optional JSON payload
}

// PerformanceSummary is a rolling summary computed from recent trades.
type PerformanceSummary struct {
	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"win_rate"`
	Profit     float64 `json:"profit"`
	AvgProfit  float64 `json:"avg_profit"`
	AvgCapture float64 `json:"avg_capture"`
}

// Snapshot is a point-in-time capture of tunable state for reproducibility
// and session resumption.
type Snapshot struct {
	ID               int64              `json:"id,omitempty"`
	At               time.Time          `json:"at"`
	Overrides        map[string]float64 `json:"overrides"`
	Streaks          map[string]int     `json:"streaks"`
	Trend            TrendState         `json:"trend"`
	Performance      PerformanceSummary `json:"performance"`
	ArtifactHashes   map[string]string  `json:"artifact_hashes,omitempty"`
	AutoApplyEnabled bool               `json:"auto_apply_enabled"`
	Ephemeral        bool               `json:"ephemeral,omitempty"`
}
