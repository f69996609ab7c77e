package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"call-insights/internal/analysis"
	"call-insights/internal/audit"
	"call-insights/internal/auth"
	"call-insights/internal/calls"
	"call-insights/internal/pipeline"
	"call-insights/internal/recording"
	"call-insights/internal/reporting"
	"call-insights/internal/transcription"
	"call-insights/pkg/logger"
)

// Analyzer re-runs analysis over a stored transcription. *pipeline.Orchestrator satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, transcriptionID string) (calls.Transcription, error)
}

// UploadConfig controls the simulated-call upload endpoint.
type UploadConfig struct {
	Dir      string
	MaxBytes int64
	// DefaultFrom is used when the form carries no caller number.
	DefaultFrom string
	// To is the number every simulated call is addressed to.
	To string
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	// Auth is nil when token auth is disabled.
	Auth     *auth.Manager
	Calls    *calls.Service
	Analysis Analyzer
	Reports  *reporting.Service
	Audit    *audit.Service
	Upload   UploadConfig

	// StreamInterval is the status poll period of the websocket stream. Defaults to 1s.
	StreamInterval time.Duration
	// AnalysisGrace bounds how long a stream waits for the summary of a
	// completed call. Defaults to 30s.
	AnalysisGrace time.Duration
}

// respondError maps a domain error onto a status code and the {message, error} envelope.
func respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error(message, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"message": message, "error": err.Error()})
}

func statusFor(err error) int {
	var (
		verr     *calls.ValidationError
		fetchErr *recording.FetchError
		sttErr   *transcription.ServiceError
		parseErr *analysis.ParseError
		llmErr   *analysis.ServiceError
	)
	switch {
	case errors.As(err, &verr), errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, calls.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, calls.ErrDuplicateCallSID),
		errors.Is(err, calls.ErrConflict),
		errors.Is(err, pipeline.ErrAlreadyProcessing):
		return http.StatusConflict
	case errors.As(err, &fetchErr), errors.As(err, &sttErr), errors.As(err, &parseErr), errors.As(err, &llmErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, message, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": message, "error": detail})
}

// actor reads the caller identity placed on the request by the auth middleware.
func actor(c *gin.Context) audit.Actor {
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	return audit.Actor{UserID: uid, Role: role, IP: c.ClientIP()}
}

// record appends an audit event. Failures are logged and never fail the request.
func (h Handlers) record(c *gin.Context, typ audit.EventType, callID, transcriptionID, message string) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.LogCallAction(c.Request.Context(), actor(c), typ, callID, transcriptionID, message); err != nil {
		logger.FromGin(c).Warn("audit append failed", "type", string(typ), "err", err)
	}
}
