package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelinesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_runs_active",
		Help: "Pipeline runs currently in flight",
	})

	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Pipeline runs by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_retry_attempts_total",
		Help: "Failed attempts that were retried, by stage",
	}, []string{"stage"})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_uploads_total",
		Help: "Audio uploads by result",
	}, []string{"result"})
)

// Stage labels.
const (
	StageAcquire    = "acquire"
	StageTranscribe = "transcribe"
	StagePersist    = "persist"
	StageAnalyze    = "analyze"
)
