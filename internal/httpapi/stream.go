package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"call-insights/internal/calls"
	"call-insights/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	streamWriteTimeout   = 5 * time.Second
	defaultAnalysisGrace = 30 * time.Second
)

// StreamStatus pushes the call's status projection over a websocket whenever it
// changes, and closes the socket once the call reaches a terminal status.
// A completed call is followed until its summary lands or AnalysisGrace
// passes, since analysis finishes after the status flips.
func (h Handlers) StreamStatus(c *gin.Context) {
	id := c.Param("id")
	// resolve the call first so unknown ids get a normal JSON 404
	view, err := h.Calls.GetCallStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Failed to get call status", err)
		return
	}

	log := logger.FromGin(c).With("call_id", id)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// the client never sends anything we use; reading only detects a closed peer
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	interval := h.StreamInterval
	if interval <= 0 {
		interval = time.Second
	}
	grace := h.AnalysisGrace
	if grace <= 0 {
		grace = defaultAnalysisGrace
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last       *calls.CallStatusView
		completeAt time.Time
	)
	for {
		if last == nil || changed(*last, view) {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(view); err != nil {
				log.Debug("status stream write failed", "err", err)
				return
			}
			v := view
			last = &v
		}
		if view.Status.Terminal() && !awaitingSummary(view, &completeAt, grace) {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(view.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteTimeout))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, err = h.Calls.GetCallStatus(ctx, id)
		if err != nil {
			log.Warn("status stream lookup failed", "err", err)
			msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "status unavailable")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteTimeout))
			return
		}
	}
}

func changed(a, b calls.CallStatusView) bool {
	if a.Status != b.Status {
		return true
	}
	if (a.Transcription == nil) != (b.Transcription == nil) {
		return true
	}
	return a.Transcription != nil && a.Transcription.Summary != b.Transcription.Summary
}

// awaitingSummary reports whether a completed call may still receive its
// analysis. The clock starts the first time the call is seen complete.
func awaitingSummary(v calls.CallStatusView, since *time.Time, grace time.Duration) bool {
	if v.Status != calls.StatusTranscriptionComplete || v.Transcription == nil || v.Transcription.Summary != "" {
		return false
	}
	if since.IsZero() {
		*since = time.Now()
	}
	return time.Since(*since) < grace
}
