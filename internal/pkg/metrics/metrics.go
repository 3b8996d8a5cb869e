package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry collects every otad metric and is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// SessionsTotal counts finished update sessions.
	// result: committed/aborted, source: http/s3/mqtt
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otad_update_sessions_total",
			Help: "Total number of finished OTA update sessions.",
		},
		[]string{"result", "source"},
	)

	// SessionRejectedTotal counts begin attempts refused by the single-flight guard.
	SessionRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otad_update_sessions_rejected_total",
			Help: "Upload attempts rejected because a session was already active.",
		},
	)

	// SessionActive is 1 while an update session holds the single-flight guard.
	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "otad_update_session_active",
			Help: "Whether an OTA update session is in progress (1) or not (0).",
		},
	)

	// BytesWritten counts image bytes appended to slots.
	BytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otad_slot_bytes_written_total",
			Help: "Total number of image bytes written into firmware slots.",
		},
	)

	// SessionDuration observes begin-to-terminal time of update sessions.
	SessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otad_update_session_duration_seconds",
			Help:    "Duration of OTA update sessions from begin to commit or abort.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"result"},
	)

	// BootGeneration mirrors the generation counter of the persisted boot selector.
	BootGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "otad_boot_selector_generation",
			Help: "Generation of the persisted boot selector; bumps on every commit.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		SessionsTotal,
		SessionRejectedTotal,
		SessionActive,
		BytesWritten,
		SessionDuration,
		BootGeneration,
	)
}
