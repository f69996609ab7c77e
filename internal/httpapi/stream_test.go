package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"call-insights/internal/calls"
)

func dialStream(t *testing.T, srv *httptest.Server, callID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/test/calls/" + callID + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp %v)", err, resp)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStreamStatus_FollowsCallToCompletion(t *testing.T) {
	env := newTestEnv(t)
	env.h.StreamInterval = 10 * time.Millisecond
	env.h.AnalysisGrace = 50 * time.Millisecond
	env.rebuild()
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx := context.Background()
	c, err := env.h.Calls.CreateCall(ctx, calls.CreateCallInput{CallSID: "CA1", From: "+1", To: "+2"})
	if err != nil {
		t.Fatal(err)
	}
	conn := dialStream(t, srv, c.ID)

	var first calls.CallStatusView
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if first.Status != calls.StatusPendingTranscription || first.Transcription != nil {
		t.Fatalf("unexpected first view: %+v", first)
	}

	if _, err := env.h.Calls.CreateTranscription(ctx, calls.CreateTranscriptionInput{CallID: c.ID, Text: "done", Confidence: 0.9}); err != nil {
		t.Fatal(err)
	}

	var last calls.CallStatusView
	if err := conn.ReadJSON(&last); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if last.Status != calls.StatusTranscriptionComplete || last.Transcription == nil || last.Transcription.Text != "done" {
		t.Fatalf("unexpected final view: %+v", last)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close after terminal status, got %v", err)
	}
}

func TestStreamStatus_DeliversSummaryAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	env.h.StreamInterval = 10 * time.Millisecond
	env.h.AnalysisGrace = 5 * time.Second
	env.rebuild()
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx := context.Background()
	c, err := env.h.Calls.CreateCall(ctx, calls.CreateCallInput{CallSID: "CA1", From: "+1", To: "+2"})
	if err != nil {
		t.Fatal(err)
	}
	conn := dialStream(t, srv, c.ID)

	var v calls.CallStatusView
	if err := conn.ReadJSON(&v); err != nil {
		t.Fatalf("read first: %v", err)
	}
	tr, err := env.h.Calls.CreateTranscription(ctx, calls.CreateTranscriptionInput{CallID: c.ID, Text: "done", Confidence: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&v); err != nil {
		t.Fatalf("read complete: %v", err)
	}
	if v.Status != calls.StatusTranscriptionComplete || v.Transcription == nil || v.Transcription.Summary != "" {
		t.Fatalf("expected complete view without summary, got %+v", v)
	}

	// analysis lands after the status flipped
	if _, err := env.repo.UpdateTranscription(ctx, tr.ID, calls.TranscriptionUpdate{
		Analysis: &calls.Analysis{Summary: "Billing question.", Categories: []string{"billing"}, Tags: []string{}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&v); err != nil {
		t.Fatalf("read analysis: %v", err)
	}
	if v.Transcription == nil || v.Transcription.Summary != "Billing question." {
		t.Fatalf("expected summary pushed, got %+v", v)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close once analysis arrived, got %v", err)
	}
}

func TestStreamStatus_UnknownCall(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/test/calls/missing/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %v", resp)
	}
}
