package usecase

import (
	"StratTune/internal/domain/models"
)

// trendMachine derives trend side with hysteresis-confirmed flips and
// classifies bars good/bad within the current trend. Not safe for concurrent
// use; the controller serializes access.
type trendMachine struct {
	k              int     // consecutive opposite-side bars needed to confirm a flip
	weakGradient   float64 // gradient magnitude under which momentum counts as weak
	decelThreshold float64 // deceleration beyond this while weak marks a bad bar

	cur          models.TrendState
	pendingSide  string
	pendingCount int
}

// trendResult reports what one observation did to the machine.
type trendResult struct {
	flipped bool
	closed  *models.TrendSegment // non-nil when a flip archived the old trend
	class   *models.BarClass     // non-nil when the bar classified bad
	skipped bool                 // classification inputs missing
}

func newTrendMachine(k int, weakGradient, decelThreshold float64) *trendMachine {
	if k < 1 {
		k = 1
	}
	return &trendMachine{
		k:              k,
		weakGradient:   weakGradient,
		decelThreshold: decelThreshold,
		cur:            models.TrendState{Side: models.SideNone},
	}
}

func sideOf(gradient float64) string {
	if gradient < 0 {
		return models.SideDown
	}
	return models.SideUp // ties resolve up
}

func (m *trendMachine) observe(s *models.DiagnosticSample) trendResult {
	var res trendResult
	side := sideOf(s.Gradient)

	switch {
	case m.cur.Side == models.SideNone:
		m.open(side, s)
	case side == m.cur.Side:
		m.cur.Bars++
		m.cur.Score += s.Gradient
		m.pendingSide = ""
		m.pendingCount = 0
	default:
		if m.pendingSide == side {
			m.pendingCount++
		} else {
			m.pendingSide = side
			m.pendingCount = 1
		}
		if m.pendingCount >= m.k {
			res.flipped = true
			res.closed = m.close(s)
			m.open(side, s)
		}
	}

	// Classification runs against the trend side in effect after any flip, so
	// the confirming bar counts into the new trend.
	cls, skipped := m.classify(s)
	res.skipped = skipped
	if cls != nil {
		m.cur.BadBars++
		res.class = cls
	} else if !skipped {
		m.cur.GoodBars++
	}

	return res
}

func (m *trendMachine) open(side string, s *models.DiagnosticSample) {
	m.cur = models.TrendState{
		Side:      side,
		StartedAt: s.ReceivedAt,
		StartBar:  s.Bar,
		Bars:      1,
		Score:     s.Gradient,
	}
	m.pendingSide = ""
	m.pendingCount = 0
}

func (m *trendMachine) close(s *models.DiagnosticSample) *models.TrendSegment {
	return &models.TrendSegment{
		Side:      m.cur.Side,
		StartedAt: m.cur.StartedAt,
		EndedAt:   s.ReceivedAt,
		StartBar:  m.cur.StartBar,
		EndBar:    s.Bar,
		Bars:      m.cur.Bars,
		GoodBars:  m.cur.GoodBars,
		BadBars:   m.cur.BadBars,
		Score:     m.cur.Score,
	}
}

// classify returns a bad-bar record with its reason, or (nil, true) when the
// required inputs are missing. Good bars return (nil, false).
func (m *trendMachine) classify(s *models.DiagnosticSample) (*models.BarClass, bool) {
	if s.Close == 0 || s.MovingAvg == 0 {
		return nil, true
	}

	var reason string
	switch m.cur.Side {
	case models.SideUp:
		if s.Gradient < 0 {
			reason = "negative gradient in up trend"
		} else if s.Acceleration < -m.decelThreshold && s.Gradient < m.weakGradient {
			reason = "decelerating on weak gradient in up trend"
		}
	case models.SideDown:
		if s.Gradient > 0 {
			reason = "positive gradient in down trend"
		} else if s.Acceleration > m.decelThreshold && s.Gradient > -m.weakGradient {
			reason = "decelerating on weak gradient in down trend"
		}
	}

	if reason == "" {
		return nil, false
	}
	return &models.BarClass{
		Bar:    s.Bar,
		Side:   m.cur.Side,
		Reason: reason,
		At:     s.ReceivedAt,
	}, false
}

// state returns a copy of the current trend state.
func (m *trendMachine) state() models.TrendState { return m.cur }
