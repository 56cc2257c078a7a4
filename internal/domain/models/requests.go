package models

// Requests for the controller HTTP endpoints. Defined in domain for
// consistency and reuse. POST /diag bodies are deliberately untyped (any
// recognized alias is accepted) and go through the normalizer instead.

type TradeRequest struct {
	EntryBar     int64   `json:"entry_bar" validate:"gte=0"`
	ExitBar      int64   `json:"exit_bar" validate:"gte=0"`
	Direction    string  `json:"direction" validate:"required,oneof=long short"`
	EntryPrice   float64 `json:"entry_price"`
	ExitPrice    float64 `json:"exit_price"`
	BarsHeld     int     `json:"bars_held" validate:"gte=0"`
	Profit       float64 `json:"profit"`
	MaxFavorable float64 `json:"max_favorable"`
	MaxAdverse   float64 `json:"max_adverse"`
	ExitReason   string  `json:"exit_reason"`
}

type EntryBlockRequest struct {
	Bar           int64    `json:"bar" validate:"gte=0"`
	Side          string   `json:"side" validate:"required,oneof=long short"`
	Gradient      float64  `json:"gradient"`
	TrendStrength float64  `json:"trend_strength"`
	Volatility    float64  `json:"volatility"`
	Reasons       []string `json:"reasons"`
	FavorableMove float64  `json:"favorable_move"`
}

type ApplyRequest struct {
	Property string  `json:"property" validate:"required"`
	Value    float64 `json:"value"`
}

type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type FootprintRequest struct {
	Kind string `json:"kind" default:"note"`
	Note string `json:"note" validate:"required"`
	Data string `json:"data"`
}

type DiagsQuery struct {
	Since string `query:"since" json:"since"`
	Limit int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=5000"`
}

type FootprintsQuery struct {
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
	Kind  string `query:"kind" json:"kind"`
}
