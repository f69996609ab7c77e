package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"call-insights/internal/audit"
	"call-insights/internal/calls"
)

// ListTranscriptions lists every transcription, or those of ?callId= when given.
func (h Handlers) ListTranscriptions(c *gin.Context) {
	out, err := h.Calls.ListTranscriptions(c.Request.Context(), c.Query("callId"))
	if err != nil {
		respondError(c, "Failed to list transcriptions", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetTranscription(c *gin.Context) {
	t, err := h.Calls.GetTranscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get transcription", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h Handlers) CreateTranscription(c *gin.Context) {
	var in calls.CreateTranscriptionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}
	t, err := h.Calls.CreateTranscription(c.Request.Context(), in)
	if err != nil {
		respondError(c, "Failed to create transcription", err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h Handlers) UpdateTranscription(c *gin.Context) {
	var in calls.UpdateTranscriptionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}
	t, err := h.Calls.UpdateTranscription(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, "Failed to update transcription", err)
		return
	}
	h.record(c, audit.EventTypeTranscriptionUpdated, t.CallID, t.ID, "transcription edited")
	c.JSON(http.StatusOK, t)
}

// DeleteTranscription removes a transcription; its call moves to transcription_deleted.
// RBAC: admin or operator.
func (h Handlers) DeleteTranscription(c *gin.Context) {
	t, err := h.Calls.DeleteTranscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to delete transcription", err)
		return
	}
	h.record(c, audit.EventTypeTranscriptionDeleted, t.CallID, t.ID, "transcription deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Transcription deleted successfully"})
}

// Analyze re-runs the language-model analysis synchronously.
// RBAC: admin or operator.
func (h Handlers) Analyze(c *gin.Context) {
	if h.Analysis == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": "Analysis unavailable", "error": "analysis not configured"})
		return
	}
	t, err := h.Analysis.Analyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to analyze transcription", err)
		return
	}
	h.record(c, audit.EventTypeTranscriptionReanalyze, t.CallID, t.ID, "analysis re-run")
	c.JSON(http.StatusOK, t)
}
