package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	samplesTotal     prometheus.Counter
	streakLength     *prometheus.GaugeVec
	autoAppliesTotal *prometheus.CounterVec
	trendSide        *prometheus.GaugeVec
	skipsTotal       *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		samplesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "strattune_samples_total",
				Help: "Total number of diagnostic samples accepted",
			},
		),
		streakLength: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "strattune_streak_length",
				Help: "Current violation streak length per parameter",
			},
			[]string{"param"},
		),
		autoAppliesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strattune_auto_applies_total",
				Help: "Total number of automatic parameter applications",
			},
			[]string{"param"},
		),
		trendSide: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "strattune_trend_side",
				Help: "Current trend side (1 = active)",
			},
			[]string{"side"},
		),
		skipsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strattune_skips_total",
				Help: "Total number of skipped records",
			},
			[]string{"kind"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strattune_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strattune_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSample counts one accepted sample.
func (r *Recorder) RecordSample() {
	r.samplesTotal.Inc()
}

// RecordStreak records the current streak length for a parameter.
func (r *Recorder) RecordStreak(param string, length int) {
	r.streakLength.WithLabelValues(param).Set(float64(length))
}

// RecordAutoApply counts one automatic application.
func (r *Recorder) RecordAutoApply(param string) {
	r.autoAppliesTotal.WithLabelValues(param).Inc()
}

// RecordTrendSide marks the active trend side.
func (r *Recorder) RecordTrendSide(side string) {
	for _, s := range []string{"up", "down", "none"} {
		v := 0.0
		if s == side {
			v = 1
		}
		r.trendSide.WithLabelValues(s).Set(v)
	}
}

// RecordSkip counts a skipped record.
func (r *Recorder) RecordSkip(kind string) {
	r.skipsTotal.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
