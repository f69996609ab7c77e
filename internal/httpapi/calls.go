package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"call-insights/internal/audit"
	"call-insights/internal/calls"
)

func (h Handlers) ListCalls(c *gin.Context) {
	out, err := h.Calls.ListCalls(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to list calls", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Calls.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get call", err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// CreateCall registers a call directly. A recordingUrl starts the pipeline.
func (h Handlers) CreateCall(c *gin.Context) {
	var in calls.CreateCallInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}
	call, err := h.Calls.CreateCall(c.Request.Context(), in)
	if err != nil {
		respondError(c, "Failed to create call", err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

// DeleteCall removes a call and its transcriptions.
// RBAC: admin or operator.
func (h Handlers) DeleteCall(c *gin.Context) {
	id := c.Param("id")
	if err := h.Calls.DeleteCall(c.Request.Context(), id); err != nil {
		respondError(c, "Failed to delete call", err)
		return
	}
	h.record(c, audit.EventTypeCallDeleted, id, "", "call deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Call deleted successfully"})
}

// Reprocess restarts the pipeline for a pending, failed or deleted-transcription call.
// RBAC: admin or operator.
func (h Handlers) Reprocess(c *gin.Context) {
	call, err := h.Calls.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to reprocess call", err)
		return
	}
	h.record(c, audit.EventTypeCallReprocessed, call.ID, "", "pipeline resubmitted from "+string(call.Status))
	c.JSON(http.StatusAccepted, gin.H{"message": "Call reprocessing started", "callId": call.ID, "status": "processing"})
}
