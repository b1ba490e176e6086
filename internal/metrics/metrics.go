package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Recognition metrics
	MatchDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ponto_match_decisions_total",
			Help: "Total number of matcher decisions by result",
		},
		[]string{"result"},
	)

	MatchConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ponto_match_confidence",
			Help:    "Confidence of positive match decisions",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
		},
	)

	Confirmations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ponto_confirmations_total",
			Help: "Total number of identities confirmed by the capture pipeline",
		},
	)

	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ponto_frames_total",
			Help: "Total number of frames by outcome",
		},
		[]string{"outcome"},
	)

	EmbedderState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ponto_embedder_breaker_open",
			Help: "Whether the embedder circuit breaker is open (1 = open, 0 = closed or half-open)",
		},
	)

	// Attendance metrics
	PunchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ponto_punches_total",
			Help: "Total number of punches by type and whether they were stored or suppressed",
		},
		[]string{"type", "result"},
	)

	EventsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ponto_events",
			Help: "Attendance events in the local log by sync state",
		},
		[]string{"state"},
	)

	RosterSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ponto_roster_identities",
			Help: "Identities in the local roster cache",
		},
	)

	// Sync metrics
	SyncCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ponto_sync_cycles_total",
			Help: "Total number of sync cycles by outcome",
		},
		[]string{"outcome"},
	)

	SyncedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ponto_synced_events_total",
			Help: "Events transitioned out of PENDING by reason",
		},
		[]string{"reason"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ponto_sync_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Sync cycle outcomes
const (
	OutcomeEmpty         = "empty"
	OutcomeSuccess       = "success"
	OutcomeTransient     = "transient"
	OutcomeConflict      = "conflict"
	OutcomeConflictWhole = "conflict_whole_batch"
	OutcomePermanent     = "permanent"
	OutcomeNotConfigured = "not_configured"
	OutcomeLocalError    = "local_error"
)

func init() {
	prometheus.MustRegister(MatchDecisions)
	prometheus.MustRegister(MatchConfidence)
	prometheus.MustRegister(Confirmations)
	prometheus.MustRegister(FramesTotal)
	prometheus.MustRegister(EmbedderState)
	prometheus.MustRegister(PunchesTotal)
	prometheus.MustRegister(EventsByState)
	prometheus.MustRegister(RosterSize)
	prometheus.MustRegister(SyncCycles)
	prometheus.MustRegister(SyncedEvents)
	prometheus.MustRegister(SyncDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
