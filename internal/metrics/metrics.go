package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sessions started, by question source (ai/market)
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_sessions_started_total",
			Help: "Total number of exam sessions started",
		},
		[]string{"source"},
	)

	// Sessions finished, by what ended them (timer/explicit/advance/skip)
	SessionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_sessions_finished_total",
			Help: "Total number of exam sessions finished",
		},
		[]string{"trigger"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exam_sessions_active_current",
			Help: "Current number of running exam sessions",
		},
	)

	JokersUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_jokers_used_total",
			Help: "Total number of jokers consumed",
		},
		[]string{"item"},
	)

	// Import rows, status: imported/skipped
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_import_rows_total",
			Help: "Rows processed by the question importer",
		},
		[]string{"status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exam_generation_duration_seconds",
			Help:    "Time spent generating questions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
