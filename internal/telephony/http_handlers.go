package telephony

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"call-insights/internal/calls"
	"call-insights/pkg/logger"
)

// CallRegistrar is the part of calls.Service the webhooks drive.
type CallRegistrar interface {
	RegisterInbound(ctx context.Context, callSID, from, to string, metadata map[string]any) (calls.Call, error)
	AttachRecording(ctx context.Context, callSID, from, to, recordingURL string, duration int) (calls.Call, error)
}

// TwilioWebhookHandler converts Twilio webhooks to call registrations and writes TwiML.
// Provider retries are expected; both endpoints are idempotent on CallSid.
type TwilioWebhookHandler struct {
	Calls  CallRegistrar
	Prompt VoicemailPrompt
}

func (h TwilioWebhookHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioInboundCall(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid webhook payload", "error": err.Error()})
		return
	}
	if form.CallSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid webhook payload", "error": "CallSid is required"})
		return
	}

	call, err := h.Calls.RegisterInbound(c.Request.Context(), form.CallSid, form.From, form.To, form.Metadata())
	if err != nil {
		// the caller still gets the voicemail prompt; the recording callback creates the call
		log.Error("inbound call registration failed", "call_sid", form.CallSid, "err", err)
	} else {
		log.Info("inbound call registered", "call_id", call.ID, "call_sid", form.CallSid)
	}

	prompt := h.Prompt
	if prompt.Greeting == "" {
		prompt = DefaultVoicemailPrompt
	}
	twiml, err := RenderVoicemail(prompt)
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to handle incoming call", "error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(twiml))
}

func (h TwilioWebhookHandler) HandleRecordingStatus(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioRecording(c.Request)
	if err != nil {
		log.Warn("twilio recording callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid webhook payload", "error": err.Error()})
		return
	}
	if form.CallSid == "" || form.RecordingURL == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid webhook payload", "error": "CallSid and RecordingUrl are required"})
		return
	}

	call, err := h.Calls.AttachRecording(c.Request.Context(), form.CallSid, form.From, form.To, form.RecordingURL, form.RecordingDuration)
	if err != nil {
		log.Error("recording attach failed", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to process recording", "error": err.Error()})
		return
	}
	log.Info("recording received", "call_id", call.ID, "recording_sid", form.RecordingSid, "duration", form.RecordingDuration)

	twiml, err := RenderHangup()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to render response", "error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(twiml))
}
