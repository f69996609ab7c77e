package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"call-insights/internal/config"
	"call-insights/internal/httpapi"
	"call-insights/internal/rbac"
	"call-insights/internal/telephony"
)

type routeDeps struct {
	cfg      config.Config
	authMW   gin.HandlerFunc
	handlers httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers

	// public
	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/healthz", health)
	r.GET("/health", health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public, optionally signature checked).
	{
		wh := telephony.TwilioWebhookHandler{Calls: h.Calls, Prompt: telephony.DefaultVoicemailPrompt}
		webhooks := r.Group("/api/calls")
		if d.cfg.Twilio.ValidateSignature {
			webhooks.Use(telephony.RequireSignature(d.cfg.Twilio.AuthToken, d.cfg.Twilio.PublicBaseURL))
		}
		webhooks.POST("/incoming", wh.HandleInboundCall)
		webhooks.POST("/recording-status", wh.HandleRecordingStatus)
	}

	if h.Auth != nil {
		r.POST("/api/auth/refresh", h.RefreshToken)
	}

	// Upload and polling endpoints used by the demo client.
	test := r.Group("/api/test")
	{
		test.POST("/simulate-call", h.SimulateCall)
		test.GET("/calls", h.TestListCalls)
		test.GET("/calls/:id/status", h.TestCallStatus)
		test.GET("/calls/:id/stream", h.StreamStatus)
	}

	// protected API group
	api := r.Group("/api")
	api.Use(d.authMW)
	writers := rbac.RequireAnyRole(rbac.RoleOperator)
	{
		callsGroup := api.Group("/calls")
		callsGroup.GET("", h.ListCalls)
		callsGroup.POST("", h.CreateCall)
		callsGroup.GET("/:id", h.GetCall)
		callsGroup.DELETE("/:id", writers, h.DeleteCall)
		callsGroup.POST("/:id/reprocess", writers, h.Reprocess)

		ts := api.Group("/transcriptions")
		ts.GET("", h.ListTranscriptions)
		ts.POST("", h.CreateTranscription)
		ts.GET("/:id", h.GetTranscription)
		ts.PUT("/:id", h.UpdateTranscription)
		ts.DELETE("/:id", writers, h.DeleteTranscription)
		ts.POST("/:id/analyze", writers, h.Analyze)

		reports := api.Group("/reports")
		reports.GET("/summary", h.ReportSummary)
		reports.GET("/export.xlsx", h.ExportXLSX)
	}
}
