package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    IngestLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "strattune",
            Subsystem: "api",
            Name:      "latency_seconds",
            Help:      "Latency of ingest endpoints",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"endpoint"},
    )

    IngestErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "strattune",
            Subsystem: "api",
            Name:      "errors_total",
            Help:      "Errors by ingest endpoint",
        },
        []string{"endpoint"},
    )
)

func Register() {
    once.Do(func() {
        prometheus.MustRegister(IngestLatency, IngestErrors)
    })
}
