package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCanonicalNames(t *testing.T) {
	n := New()
	now := time.Now()

	s := n.Normalize(map[string]interface{}{
		"gradient":       0.42,
		"trend_strength": 31.5,
		"volatility":     1.8,
		"volume":         1250.0,
		"close":          101.25,
		"moving_avg":     100.9,
		"bar":            7.0,
		"side":           "Long",
	}, now)

	assert.InDelta(t, 0.42, s.Gradient, 1e-9)
	assert.InDelta(t, 31.5, s.TrendStrength, 1e-9)
	assert.InDelta(t, 1.8, s.Volatility, 1e-9)
	assert.InDelta(t, 1250, s.Volume, 1e-9)
	assert.InDelta(t, 101.25, s.Close, 1e-9)
	assert.InDelta(t, 100.9, s.MovingAvg, 1e-9)
	assert.Equal(t, int64(7), s.Bar)
	assert.Equal(t, "long", s.Side)
	assert.Equal(t, now, s.ReceivedAt)
}

func TestNormalizeAliasesAndCaseFolding(t *testing.T) {
	n := New()

	s := n.Normalize(map[string]interface{}{
		"primaryGradient":  0.3,
		"Secondary_Grad2":  0.1, // not an alias; must not resolve
		"gradient2":        0.1,
		"ADX":              28.0,
		"osc-strength":     22.0,
		"atrPct":           2.1,
		"barVolume":        900.0,
		"Moving_Average":   55.0,
		"candleIndex":      3.0,
		"no_entry_long":    "volume,gradient",
		"blocked-short":    []interface{}{"spread", 4, "volatility"},
		"gradient_delta":   -0.02,
	}, time.Now())

	assert.InDelta(t, 0.3, s.Gradient, 1e-9)
	assert.InDelta(t, 0.1, s.SecondaryGradient, 1e-9)
	assert.InDelta(t, 28, s.TrendStrength, 1e-9)
	assert.InDelta(t, 22, s.PullStrength, 1e-9)
	assert.InDelta(t, 2.1, s.Volatility, 1e-9)
	assert.InDelta(t, 900, s.Volume, 1e-9)
	assert.InDelta(t, 55, s.MovingAvg, 1e-9)
	assert.InDelta(t, -0.02, s.Acceleration, 1e-9)
	assert.Equal(t, int64(3), s.Bar)
	assert.Equal(t, []string{"volume", "gradient"}, s.BlockedLong)
	assert.Equal(t, []string{"spread", "volatility"}, s.BlockedShort)
}

func TestNormalizeAliasResolutionOrder(t *testing.T) {
	n := New()

	// "gradient" wins over "slope" when both are present
	s := n.Normalize(map[string]interface{}{
		"gradient": 0.5,
		"slope":    0.9,
	}, time.Now())
	assert.InDelta(t, 0.5, s.Gradient, 1e-9)
}

func TestNormalizeCoercesNumericTypes(t *testing.T) {
	n := New()

	s := n.Normalize(map[string]interface{}{
		"gradient": " 0.25 ",
		"volume":   int64(1500),
		"bar":      42,
		"close":    float32(99.5),
	}, time.Now())

	assert.InDelta(t, 0.25, s.Gradient, 1e-9)
	assert.InDelta(t, 1500, s.Volume, 1e-9)
	assert.Equal(t, int64(42), s.Bar)
	assert.InDelta(t, 99.5, s.Close, 1e-3)
}

func TestNormalizeMalformedDegradesToZero(t *testing.T) {
	n := New()

	s := n.Normalize(map[string]interface{}{
		"gradient": "not a number",
		"volume":   map[string]interface{}{"oops": true},
		"side":     12.0,
	}, time.Now())

	assert.Zero(t, s.Gradient)
	assert.Zero(t, s.Volume)
	assert.Empty(t, s.Side)
	assert.Nil(t, s.BlockedLong)
}

func TestNormalizeBarFallbackCounter(t *testing.T) {
	n := New()

	s1 := n.Normalize(map[string]interface{}{"gradient": 0.1}, time.Now())
	s2 := n.Normalize(map[string]interface{}{"gradient": 0.1}, time.Now())
	assert.Equal(t, int64(1), s1.Bar)
	assert.Equal(t, int64(2), s2.Bar)

	// an explicit bar advances the counter so later fallbacks stay ahead
	s3 := n.Normalize(map[string]interface{}{"bar": 10.0}, time.Now())
	s4 := n.Normalize(map[string]interface{}{"gradient": 0.1}, time.Now())
	assert.Equal(t, int64(10), s3.Bar)
	assert.Equal(t, int64(11), s4.Bar)

	// a stale explicit bar never rewinds the counter
	s5 := n.Normalize(map[string]interface{}{"bar": 4.0}, time.Now())
	s6 := n.Normalize(map[string]interface{}{"gradient": 0.1}, time.Now())
	assert.Equal(t, int64(4), s5.Bar)
	assert.Equal(t, int64(12), s6.Bar)
}
