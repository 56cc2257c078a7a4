package normalizer

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"StratTune/internal/domain/models"
)

// aliases maps each canonical field to the accepted incoming names, in
// resolution order. Matching is case-insensitive after stripping "_" and "-",
// so "primaryGradient", "Primary_Gradient" and "primary-gradient" all hit the
// same entry.
var aliases = map[string][]string{
	"gradient":           {"gradient", "primarygradient", "grad", "momentumgradient", "slope"},
	"secondary_gradient": {"secondarygradient", "gradient2", "grad2", "slowgradient"},
	"acceleration":       {"acceleration", "accel", "gradientdelta"},
	"trend_strength":     {"trendstrength", "strength", "adx", "strengtha"},
	"pull_strength":      {"pullstrength", "pull", "strengthb", "oscstrength"},
	"volatility":         {"volatility", "vol", "atrpct", "volratio"},
	"stability":          {"stability", "stable", "noise"},
	"volume":             {"volume", "vlm", "tradedvolume", "barvolume"},
	"close":              {"close", "closeprice", "price", "last"},
	"moving_avg":         {"movingavg", "ma", "sma", "refma", "movingaverage"},
	"bar":                {"bar", "barindex", "barseq", "sequence", "candleindex"},
	"blocked_long":       {"blockedlong", "longblocks", "blockreasonslong", "noentrylong"},
	"blocked_short":      {"blockedshort", "shortblocks", "blockreasonsshort", "noentryshort"},
	"side":               {"side", "trendside", "direction", "trend"},
}

// Normalizer converts heterogeneous raw records into canonical
// DiagnosticSamples. It never fails: unresolvable fields degrade to zero
// values.
type Normalizer struct {
	barSeq atomic.Int64 // fallback bar counter for records without one
}

func New() *Normalizer {
	return &Normalizer{}
}

// Normalize builds one DiagnosticSample from a raw record. ReceivedAt is
// stamped with now; a missing bar index falls back to a per-process monotone
// counter so recency queries stay usable.
func (n *Normalizer) Normalize(raw map[string]interface{}, now time.Time) *models.DiagnosticSample {
	fields := foldKeys(raw)

	s := &models.DiagnosticSample{
		Gradient:          number(fields, "gradient"),
		SecondaryGradient: number(fields, "secondary_gradient"),
		Acceleration:      number(fields, "acceleration"),
		TrendStrength:     number(fields, "trend_strength"),
		PullStrength:      number(fields, "pull_strength"),
		Volatility:        number(fields, "volatility"),
		Stability:         number(fields, "stability"),
		Volume:            number(fields, "volume"),
		Close:             number(fields, "close"),
		MovingAvg:         number(fields, "moving_avg"),
		BlockedLong:       labels(fields, "blocked_long"),
		BlockedShort:      labels(fields, "blocked_short"),
		Side:              label(fields, "side"),
		ReceivedAt:        now,
	}

	if bar := int64(number(fields, "bar")); bar > 0 {
		s.Bar = bar
		// keep the fallback counter ahead of explicit sequence numbers
		for {
			cur := n.barSeq.Load()
			if cur >= bar || n.barSeq.CompareAndSwap(cur, bar) {
				break
			}
		}
	} else {
		s.Bar = n.barSeq.Add(1)
	}

	return s
}

// foldKeys lowercases keys and strips separators so alias lookup is a plain
// map access.
func foldKeys(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[foldKey(k)] = v
	}
	return out
}

func foldKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	k = strings.ReplaceAll(k, "-", "")
	return k
}

func resolve(fields map[string]interface{}, canonical string) (interface{}, bool) {
	for _, a := range aliases[canonical] {
		if v, ok := fields[a]; ok {
			return v, true
		}
	}
	return nil, false
}

// number coerces float64, integer and numeric-string values; anything else
// degrades to 0.
func number(fields map[string]interface{}, canonical string) float64 {
	v, ok := resolve(fields, canonical)
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func label(fields map[string]interface{}, canonical string) string {
	v, ok := resolve(fields, canonical)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return ""
}

func labels(fields map[string]interface{}, canonical string) []string {
	v, ok := resolve(fields, canonical)
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case []string:
		return x
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		parts := strings.Split(x, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}
