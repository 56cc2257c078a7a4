package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratTune/internal/domain/models"
)

func bar(n int64, gradient float64) *models.DiagnosticSample {
	return &models.DiagnosticSample{
		Gradient:   gradient,
		Close:      100,
		MovingAvg:  99,
		Bar:        n,
		ReceivedAt: time.Unix(n, 0),
	}
}

func TestTrendOpensOnFirstBar(t *testing.T) {
	m := newTrendMachine(2, 0.05, 0.02)
	res := m.observe(bar(1, 0.4))

	assert.False(t, res.flipped)
	assert.Equal(t, models.SideUp, m.state().Side)
	assert.Equal(t, int64(1), m.state().StartBar)
}

func TestTrendZeroGradientResolvesUp(t *testing.T) {
	m := newTrendMachine(2, 0.05, 0.02)
	m.observe(bar(1, 0))

	assert.Equal(t, models.SideUp, m.state().Side)
}

func TestTrendSingleOppositeBarDoesNotFlip(t *testing.T) {
	m := newTrendMachine(2, 0.05, 0.02)
	m.observe(bar(1, 0.4))
	m.observe(bar(2, 0.3))
	res := m.observe(bar(3, -0.2))

	assert.False(t, res.flipped)
	assert.Equal(t, models.SideUp, m.state().Side)
}

func TestTrendFlipConfirmedAfterK(t *testing.T) {
	m := newTrendMachine(2, 0.05, 0.02)
	m.observe(bar(1, 0.4))
	m.observe(bar(2, 0.3))
	m.observe(bar(3, -0.2))
	res := m.observe(bar(4, -0.3))

	require.True(t, res.flipped)
	require.NotNil(t, res.closed)
	assert.Equal(t, models.SideUp, res.closed.Side)
	assert.Equal(t, int64(1), res.closed.StartBar)
	assert.Equal(t, int64(4), res.closed.EndBar)
	assert.Equal(t, models.SideDown, m.state().Side)
	assert.Equal(t, int64(4), m.state().StartBar)
}

func TestTrendPendingResetOnReversion(t *testing.T) {
	m := newTrendMachine(2, 0.05, 0.02)
	m.observe(bar(1, 0.4))
	m.observe(bar(2, -0.2)) // pending down x1
	m.observe(bar(3, 0.3))  // reverts, pending cleared
	res := m.observe(bar(4, -0.2))

	assert.False(t, res.flipped)
	assert.Equal(t, models.SideUp, m.state().Side)

	res = m.observe(bar(5, -0.2))
	assert.True(t, res.flipped)
}

func TestTrendConfirmingBarCountsIntoNewTrend(t *testing.T) {
	m := newTrendMachine(2, 0.05, 0.02)
	m.observe(bar(1, 0.4))
	m.observe(bar(2, -0.2))
	res := m.observe(bar(3, -0.3))

	require.True(t, res.flipped)
	// the confirming bar classifies against the fresh down trend, so a negative
	// gradient is a good bar here
	assert.Nil(t, res.class)
	assert.Equal(t, 1, m.state().GoodBars)
}

func TestBadBarNegativeGradientInUpTrend(t *testing.T) {
	m := newTrendMachine(3, 0.05, 0.02)
	m.observe(bar(1, 0.4))
	res := m.observe(bar(2, -0.1)) // pending, no flip with k=3

	require.NotNil(t, res.class)
	assert.Equal(t, models.SideUp, res.class.Side)
	assert.Equal(t, "negative gradient in up trend", res.class.Reason)
	assert.Equal(t, 1, m.state().BadBars)
}

func TestBadBarDecelerationOnWeakGradient(t *testing.T) {
	m := newTrendMachine(2, 0.05, 0.02)
	m.observe(bar(1, 0.4))

	s := bar(2, 0.03)
	s.Acceleration = -0.05
	res := m.observe(s)

	require.NotNil(t, res.class)
	assert.Equal(t, "decelerating on weak gradient in up trend", res.class.Reason)
}

func TestClassificationSkippedWithoutPriceInputs(t *testing.T) {
	m := newTrendMachine(2, 0.05, 0.02)
	s := bar(1, 0.4)
	s.Close = 0
	res := m.observe(s)

	assert.True(t, res.skipped)
	assert.Nil(t, res.class)
	assert.Equal(t, 0, m.state().GoodBars)
	assert.Equal(t, 0, m.state().BadBars)
}

func TestTrendScoreAccumulates(t *testing.T) {
	m := newTrendMachine(2, 0.05, 0.02)
	m.observe(bar(1, 0.4))
	m.observe(bar(2, 0.2))

	assert.InDelta(t, 0.6, m.state().Score, 1e-9)
	assert.Equal(t, 2, m.state().Bars)
}
