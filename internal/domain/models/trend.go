package models

import "time"

// Trend sides.
const (
	SideUp   = "up"
	SideDown = "down"
	SideNone = "none"
)

// TrendState is the currently open trend. Exactly one instance is live at any
// time; it is mutated on every sample and archived as a TrendSegment when a
// flip is confirmed.
type TrendState struct {
	Side      string    `json:"side"`
	StartedAt time.Time `json:"started_at"`
	StartBar  int64     `json:"start_bar"`
	Bars      int       `json:"bars"`
	GoodBars  int       `json:"good_bars"`
	BadBars   int       `json:"bad_bars"`
	Score     float64   `json:"score"`
}

// TrendSegment is an immutable closed record of a past trend.
type TrendSegment struct {
	ID        int64     `json:"id,omitempty"`
	Side      string    `json:"side"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	StartBar  int64     `json:"start_bar"`
	EndBar    int64     `json:"end_bar"`
	Bars      int       `json:"bars"`
	GoodBars  int       `json:"good_bars"`
	BadBars   int       `json:"bad_bars"`
	Score     float64   `json:"score"`
}

// BarClass is a persisted bad-bar classification with its triggering reason.
type BarClass struct {
	Bar    int64     `json:"bar"`
	Side   string    `json:"side"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}
