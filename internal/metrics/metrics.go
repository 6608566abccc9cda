// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus counters for archive runs. The process
// is a batch job, so metrics only leave the process via the optional
// Pushgateway push at the end of a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodsaver_runs_total",
		Help: "Completed channel runs by outcome",
	}, []string{"outcome"}) // outcome=downloaded|up_to_date|live_deferred|no_vods|dry_run|error

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodsaver_failures_total",
		Help: "Channel run failures by stage",
	}, []string{"stage"}) // stage=auth|lookup|state|download|nfo

	downloadDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vodsaver_download_duration_seconds",
		Help:    "Wall-clock time spent downloading a single VOD",
		Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200, 14400},
	})

	downloadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodsaver_downloaded_bytes_total",
		Help: "Total bytes of VOD files written to disk",
	})

	lastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vodsaver_last_success_timestamp_seconds",
		Help: "Unix time of the most recent successful download",
	})
)

func IncRun(outcome string)   { runsTotal.WithLabelValues(outcome).Inc() }
func IncFailure(stage string) { failuresTotal.WithLabelValues(stage).Inc() }

func ObserveDownloadDuration(d time.Duration) { downloadDurationSeconds.Observe(d.Seconds()) }
func AddDownloadedBytes(n int64)              { downloadedBytesTotal.Add(float64(n)) }
func RecordDownloadSuccess(ts time.Time)      { lastSuccessTimestamp.Set(float64(ts.Unix())) }
