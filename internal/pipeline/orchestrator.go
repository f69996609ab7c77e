package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"call-insights/internal/analysis"
	"call-insights/internal/calls"
	"call-insights/internal/metrics"
	"call-insights/internal/recording"
	"call-insights/internal/transcription"
	"call-insights/pkg/logger"
	"call-insights/pkg/utils"
)

// ErrAlreadyProcessing is returned when another run holds the call's lock.
var ErrAlreadyProcessing = errors.New("pipeline: call is already being processed")

// RecordingSource resolves a recording reference to a readable file.
type RecordingSource interface {
	Acquire(ctx context.Context, callID, ref string) (*recording.Recording, error)
}

type Config struct {
	Retry utils.RetryConfig
	// StartDelay postpones background runs started through Submit.
	StartDelay time.Duration
}

// Orchestrator moves a call through
// pending_transcription -> transcription_in_progress -> transcription_complete | transcription_failed.
//
// Analysis runs after completion as a supervised background task. Its failure
// is logged and never changes the call status.
type Orchestrator struct {
	repo        calls.Repository
	recordings  RecordingSource
	transcriber transcription.Client
	analyzer    analysis.Client
	locker      Locker
	sup         *Supervisor
	cfg         Config
	log         *slog.Logger
	newID       func() string
}

func NewOrchestrator(
	repo calls.Repository,
	recordings RecordingSource,
	transcriber transcription.Client,
	analyzer analysis.Client,
	locker Locker,
	sup *Supervisor,
	cfg Config,
	log *slog.Logger,
) *Orchestrator {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		repo:        repo,
		recordings:  recordings,
		transcriber: transcriber,
		analyzer:    analyzer,
		locker:      locker,
		sup:         sup,
		cfg:         cfg,
		log:         log,
		newID:       uuid.NewString,
	}
}

// Submit schedules Process in the background and returns immediately.
// Runs that find the call locked or already transcribed are skipped.
func (o *Orchestrator) Submit(callID, recordingRef string) {
	accepted := o.sup.GoAfter("process:"+callID, o.cfg.StartDelay, func(ctx context.Context) error {
		_, err := o.Process(ctx, callID, recordingRef)
		switch {
		case errors.Is(err, ErrAlreadyProcessing):
			o.log.Info("pipeline run skipped, call already processing", "call_id", callID)
			return nil
		case errors.Is(err, calls.ErrConflict):
			o.log.Info("pipeline run skipped, call no longer processable", "call_id", callID)
			return nil
		}
		return err
	})
	if !accepted {
		o.log.Warn("pipeline run not scheduled, shutting down; call stays pending", "call_id", callID)
	}
}

// Process runs acquisition, transcription and persistence for one call and
// schedules analysis. Any failure before completion leaves the call
// transcription_failed with no transcription reference.
//
// The call's status is re-read under the lock: a call another run has already
// completed yields calls.ErrConflict, one still in progress ErrAlreadyProcessing.
func (o *Orchestrator) Process(ctx context.Context, callID, recordingRef string) (calls.Transcription, error) {
	release, ok, err := o.locker.TryLock(ctx, callID)
	if err != nil {
		return calls.Transcription{}, fmt.Errorf("pipeline: lock: %w", err)
	}
	if !ok {
		return calls.Transcription{}, ErrAlreadyProcessing
	}
	defer release()

	current, err := o.repo.GetCall(ctx, callID)
	if err != nil {
		return calls.Transcription{}, calls.WrapStoreErr("get call", err)
	}
	switch {
	case current.Status == calls.StatusTranscriptionInProgress:
		return calls.Transcription{}, ErrAlreadyProcessing
	case !current.Status.Processable():
		metrics.PipelineRuns.WithLabelValues("rejected").Inc()
		return calls.Transcription{}, fmt.Errorf("pipeline: call is %s: %w", current.Status, calls.ErrConflict)
	}

	log := o.log.With("call_id", callID)
	ctx = logger.With(ctx, log)

	metrics.PipelinesActive.Inc()
	defer metrics.PipelinesActive.Dec()

	inProgress := calls.StatusTranscriptionInProgress
	if _, err := o.repo.UpdateCall(ctx, callID, calls.CallUpdate{Status: &inProgress}); err != nil {
		metrics.PipelineRuns.WithLabelValues("rejected").Inc()
		return calls.Transcription{}, calls.WrapStoreErr("mark in progress", err)
	}
	log.Info("pipeline started", "recording", recordingRef)
	started := time.Now()

	text, stage, err := o.transcribe(ctx, callID, recordingRef)
	if err != nil {
		return calls.Transcription{}, o.fail(ctx, log, callID, stage, err)
	}

	persistStart := time.Now()
	t, err := o.repo.CreateTranscription(ctx, calls.Transcription{
		ID:         o.newID(),
		CallID:     callID,
		Text:       text,
		Confidence: calls.PlaceholderConfidence,
	})
	if err != nil {
		return calls.Transcription{}, o.fail(ctx, log, callID, metrics.StagePersist, calls.WrapStoreErr("create transcription", err))
	}

	complete := calls.StatusTranscriptionComplete
	if _, err := o.repo.UpdateCall(ctx, callID, calls.CallUpdate{Status: &complete, TranscriptionID: &t.ID}); err != nil {
		err = o.fail(ctx, log, callID, metrics.StagePersist, calls.WrapStoreErr("attach transcription", err))
		if _, derr := o.repo.DeleteTranscription(context.WithoutCancel(ctx), t.ID); derr != nil {
			log.Warn("orphan transcription cleanup failed", "transcription_id", t.ID, "err", derr)
		}
		return calls.Transcription{}, err
	}
	metrics.StageDuration.WithLabelValues(metrics.StagePersist).Observe(time.Since(persistStart).Seconds())
	metrics.PipelineRuns.WithLabelValues("complete").Inc()
	log.Info("transcription complete", "transcription_id", t.ID, "elapsed", time.Since(started).String())

	tid := t.ID
	o.sup.Go("analyze:"+callID, func(ctx context.Context) error {
		ctx = logger.With(ctx, log)
		if _, err := o.Analyze(ctx, tid); err != nil {
			log.Warn("analysis failed, transcription kept without analysis", "transcription_id", tid, "err", err)
		}
		return nil
	})
	return t, nil
}

// transcribe acquires the recording and converts it to text. It reports the stage that failed.
func (o *Orchestrator) transcribe(ctx context.Context, callID, ref string) (string, string, error) {
	acqStart := time.Now()
	rec, err := o.recordings.Acquire(ctx, callID, ref)
	if err != nil {
		return "", metrics.StageAcquire, err
	}
	defer rec.Close()
	metrics.StageDuration.WithLabelValues(metrics.StageAcquire).Observe(time.Since(acqStart).Seconds())

	trStart := time.Now()
	res, err := utils.WithRetry(ctx, o.retryConfig(ctx, metrics.StageTranscribe), func(ctx context.Context) (transcription.Result, error) {
		f, err := rec.Open()
		if err != nil {
			return transcription.Result{}, fmt.Errorf("open recording: %w", err)
		}
		defer f.Close()
		return o.transcriber.Transcribe(ctx, f, rec.Filename)
	})
	if err != nil {
		return "", metrics.StageTranscribe, err
	}
	metrics.StageDuration.WithLabelValues(metrics.StageTranscribe).Observe(time.Since(trStart).Seconds())
	return res.Text, "", nil
}

// Analyze runs the analysis client over a stored transcription and writes the
// result back in place.
func (o *Orchestrator) Analyze(ctx context.Context, transcriptionID string) (calls.Transcription, error) {
	t, err := o.repo.GetTranscription(ctx, transcriptionID)
	if err != nil {
		return calls.Transcription{}, calls.WrapStoreErr("get transcription", err)
	}

	start := time.Now()
	res, err := utils.WithRetry(ctx, o.retryConfig(ctx, metrics.StageAnalyze), func(ctx context.Context) (analysis.Result, error) {
		return o.analyzer.Analyze(ctx, t.Text)
	})
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.StageAnalyze, errorType(err)).Inc()
		return calls.Transcription{}, err
	}
	metrics.StageDuration.WithLabelValues(metrics.StageAnalyze).Observe(time.Since(start).Seconds())

	updated, err := o.repo.UpdateTranscription(ctx, transcriptionID, calls.TranscriptionUpdate{
		Analysis: &calls.Analysis{Summary: res.Summary, Categories: res.Categories, Tags: res.Tags},
	})
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.StageAnalyze, "persistence").Inc()
		return calls.Transcription{}, calls.WrapStoreErr("store analysis", err)
	}
	logger.From(ctx).Info("analysis stored", "transcription_id", transcriptionID,
		"categories", len(updated.Categories), "tags", len(updated.Tags))
	return updated, nil
}

func (o *Orchestrator) retryConfig(ctx context.Context, stage string) utils.RetryConfig {
	cfg := o.cfg.Retry
	log := logger.From(ctx)
	cfg.OnRetry = func(attempt int, err error, next time.Duration) {
		metrics.RetryAttempts.WithLabelValues(stage).Inc()
		log.Warn("attempt failed, retrying", "stage", stage, "attempt", attempt, "next_in", next.String(), "err", err)
	}
	return cfg
}

// fail records transcription_failed on a context that survives cancellation
// and returns the original error.
func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, callID, stage string, cause error) error {
	metrics.Errors.WithLabelValues(stage, errorType(cause)).Inc()
	metrics.PipelineRuns.WithLabelValues("failed").Inc()
	log.Error("pipeline failed", "stage", stage, "err", cause)

	failed := calls.StatusTranscriptionFailed
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := o.repo.UpdateCall(wctx, callID, calls.CallUpdate{Status: &failed}); err != nil {
		log.Error("could not mark call failed", "err", err)
	}
	return cause
}

func errorType(err error) string {
	var (
		fetchErr *recording.FetchError
		sttErr   *transcription.ServiceError
		parseErr *analysis.ParseError
		llmErr   *analysis.ServiceError
		storeErr *calls.PersistenceError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &sttErr):
		return "transcription_service"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &llmErr):
		return "analysis_service"
	case errors.As(err, &storeErr), errors.Is(err, calls.ErrNotFound):
		return "persistence"
	default:
		return "other"
	}
}
