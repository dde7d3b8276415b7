package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "us10yr_fetches_total",
		Help: "Fetch outcomes by result (success, no_data, error).",
	}, []string{"outcome"})

	recordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "us10yr_records_written_total",
		Help: "Quotes successfully persisted.",
	})

	writeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "us10yr_write_errors_total",
		Help: "Persist attempts that failed.",
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "us10yr_fetch_duration_seconds",
		Help:    "Time spent fetching a single date.",
		Buckets: prometheus.DefBuckets,
	})
)
