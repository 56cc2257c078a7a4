package models

import "time"

// DiagnosticSample is one normalized per-bar telemetry record pushed by the
// strategy process. Immutable once created by the normalizer.
type DiagnosticSample struct {
	Gradient          float64   `json:"gradient"`
	SecondaryGradient float64   `json:"secondary_gradient"`
	Acceleration      float64   `json:"acceleration"`
	TrendStrength     float64   `json:"trend_strength"`
	PullStrength      float64   `json:"pull_strength"`
	Volatility        float64   `json:"volatility"`
	Stability         float64   `json:"stability"`
	Volume            float64   `json:"volume"`
	Close             float64   `json:"close"`
	MovingAvg         float64   `json:"moving_avg"`
	Bar               int64     `json:"bar"`
	ReceivedAt        time.Time `json:"received_at"`
	BlockedLong       []string  `json:"blocked_long,omitempty"`
	BlockedShort      []string  `json:"blocked_short,omitempty"`
	Side              string    `json:"side,omitempty"`
}

// Trade is an externally reported completed trade. Append-only.
type Trade struct {
	ID           int64     `json:"id,omitempty"`
	EntryBar     int64     `json:"entry_bar"`
	ExitBar      int64     `json:"exit_bar"`
	Direction    string    `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	BarsHeld     int       `json:"bars_held"`
	Profit       float64   `json:"profit"`
	MaxFavorable float64   `json:"max_favorable"`
	MaxAdverse   float64   `json:"max_adverse"`
	ExitReason   string    `json:"exit_reason"`
	At           time.Time `json:"at"`
}

// CaptureRatio returns how much of the peak favorable excursion the trade
// actually realized. Zero MFE yields 0.
func (t *Trade) CaptureRatio() float64 {
	if t.MaxFavorable <= 0 {
		return 0
	}
	return t.Profit / t.MaxFavorable
}

// EntryBlock is an externally reported blocked entry attempt. Append-only.
type EntryBlock struct {
	ID            int64     `json:"id,omitempty"`
	Bar           int64     `json:"bar"`
	Side          string    `json:"side"`
	Gradient      float64   `json:"gradient"`
	TrendStrength float64   `json:"trend_strength"`
	Volatility    float64   `json:"volatility"`
	Reasons       []string  `json:"reasons,omitempty"`
	FavorableMove float64   `json:"favorable_move"`
	At            time.Time `json:"at"`
}
