// Package metrics exposes Prometheus collectors for crawl runs.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal      *prometheus.CounterVec
	rowsTotal              *prometheus.CounterVec
	fetchRetriesTotal      prometheus.Counter
	checkpointsTotal       prometheus.Counter
	runsTotal              *prometheus.CounterVec
	databaseSongs          prometheus.Gauge
	databaseBroken         prometheus.Gauge
	latestTimestampSeconds prometheus.Gauge
	fetchDurationSeconds   prometheus.Histogram

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastplayed_pages_fetched_total",
				Help: "Total number of listing pages fetched, labeled by walk direction.",
			},
			[]string{"direction"},
		)

		rowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastplayed_rows_total",
				Help: "Total number of rows folded into the database, labeled by merge outcome.",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lastplayed_fetch_retries_total",
				Help: "Total number of page fetch retries.",
			},
		)

		checkpointsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lastplayed_checkpoints_total",
				Help: "Total number of periodic checkpoints written.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastplayed_runs_total",
				Help: "Total number of crawl runs, labeled by mode and stop reason.",
			},
			[]string{"mode", "reason"},
		)

		databaseSongs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lastplayed_database_songs",
				Help: "Number of unique timestamped songs in the database.",
			},
		)

		databaseBroken = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lastplayed_database_broken_entries",
				Help: "Number of conflicting timestamp entries in the database.",
			},
		)

		latestTimestampSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lastplayed_latest_timestamp_seconds",
				Help: "Unix time of the database resume point.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lastplayed_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastplayed_http_requests_total",
				Help: "Requests served by the metrics endpoint, labeled by route and status code.",
			},
			[]string{"route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lastplayed_http_request_duration_seconds",
				Help:    "Latency of requests served by the metrics endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the fetched page counter.
func ObservePage(direction string) {
	pagesFetchedTotal.WithLabelValues(direction).Inc()
}

// ObserveRow increments the row counter for a merge outcome.
func ObserveRow(outcome string) {
	rowsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchRetry increments the retry counter.
func ObserveFetchRetry() {
	fetchRetriesTotal.Inc()
}

// ObserveFetchDuration records how long one fetch attempt took.
func ObserveFetchDuration(d time.Duration) {
	fetchDurationSeconds.Observe(d.Seconds())
}

// ObserveCheckpoint increments the checkpoint counter.
func ObserveCheckpoint() {
	checkpointsTotal.Inc()
}

// ObserveRun increments the run counter.
func ObserveRun(mode, reason string) {
	runsTotal.WithLabelValues(mode, reason).Inc()
}

// SetDatabaseState publishes the database size and resume point.
func SetDatabaseState(songs, broken int, latest time.Time) {
	databaseSongs.Set(float64(songs))
	databaseBroken.Set(float64(broken))
	if !latest.IsZero() {
		latestTimestampSeconds.Set(float64(latest.Unix()))
	}
}

// WriteTextfile dumps the default registry in the text exposition format, for
// the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
