package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingProcessor struct {
	mu   sync.Mutex
	subs [][2]string
}

func (p *recordingProcessor) Submit(callID, ref string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, [2]string{callID, ref})
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func newTestService() (*Service, *MemoryRepo, *recordingProcessor) {
	repo := newTestRepo()
	proc := &recordingProcessor{}
	return NewService(repo, proc), repo, proc
}

func TestService_CreateCallWithoutRecordingIsPending(t *testing.T) {
	svc, _, proc := newTestService()

	c, err := svc.CreateCall(context.Background(), CreateCallInput{CallSID: "CA1", From: "+1", To: "+2"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Status != StatusPendingTranscription || c.TranscriptionID != "" {
		t.Fatalf("expected pending without transcription, got %+v", c)
	}
	if proc.count() != 0 {
		t.Fatalf("expected no pipeline submission")
	}
}

func TestService_CreateCallWithRecordingSubmits(t *testing.T) {
	svc, _, proc := newTestService()

	c, err := svc.CreateCall(context.Background(), CreateCallInput{CallSID: "CA1", From: "+1", To: "+2", RecordingURL: "uploads/a.mp3"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if proc.count() != 1 || proc.subs[0][0] != c.ID || proc.subs[0][1] != "uploads/a.mp3" {
		t.Fatalf("unexpected submissions: %v", proc.subs)
	}
}

func TestService_CreateCallValidation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateCall(context.Background(), CreateCallInput{From: "+1", To: "+2"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "callSid" {
		t.Fatalf("expected json field name, got %q", ve.Field)
	}

	_, err = svc.CreateCall(context.Background(), CreateCallInput{
		CallSID: "CA1", From: "+1", To: "+2",
		Metadata: map[string]any{"nested": map[string]any{"x": 1}},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for nested metadata, got %v", err)
	}
}

func TestService_GetCallStatusIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	c, _ := svc.CreateCall(ctx, CreateCallInput{CallSID: "CA1", From: "+1", To: "+2"})

	a, err := svc.GetCallStatus(ctx, c.ID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, _ := svc.GetCallStatus(ctx, c.ID)
	if a.CallID != b.CallID || a.Status != b.Status || a.Transcription != nil || b.Transcription != nil {
		t.Fatalf("expected identical projections: %+v vs %+v", a, b)
	}
	if _, err := svc.GetCallStatus(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_CreateTranscriptionCompletesCall(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	c, _ := svc.CreateCall(ctx, CreateCallInput{CallSID: "CA1", From: "+1", To: "+2"})

	tr, err := svc.CreateTranscription(ctx, CreateTranscriptionInput{CallID: c.ID, Text: "hello", Confidence: 0.5})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	st, _ := svc.GetCallStatus(ctx, c.ID)
	if st.Status != StatusTranscriptionComplete || st.Transcription == nil || st.Transcription.Text != "hello" {
		t.Fatalf("unexpected status view: %+v", st)
	}
	if st.Transcription.Categories == nil || st.Transcription.Tags == nil {
		t.Fatalf("expected non-nil label lists")
	}

	if _, err := svc.DeleteTranscription(ctx, tr.ID); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	st, _ = svc.GetCallStatus(ctx, c.ID)
	if st.Status != StatusTranscriptionDeleted || st.Transcription != nil {
		t.Fatalf("expected deleted marker, got %+v", st)
	}
}

func TestService_CreateTranscriptionUnknownCall(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateTranscription(context.Background(), CreateTranscriptionInput{CallID: "nope", Text: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_UpdateTranscription(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	c, _ := svc.CreateCall(ctx, CreateCallInput{CallSID: "CA1", From: "+1", To: "+2"})
	tr, _ := svc.CreateTranscription(ctx, CreateTranscriptionInput{CallID: c.ID, Text: "hello"})

	text := "edited"
	got, err := svc.UpdateTranscription(ctx, tr.ID, UpdateTranscriptionInput{Text: &text})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Text != "edited" {
		t.Fatalf("expected edited text")
	}

	bad := 2.0
	var ve *ValidationError
	if _, err := svc.UpdateTranscription(ctx, tr.ID, UpdateTranscriptionInput{Confidence: &bad}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestService_ListCallSummaries(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	a, _ := svc.CreateCall(ctx, CreateCallInput{CallSID: "CA1", From: "+1", To: "+2"})
	b, _ := svc.CreateCall(ctx, CreateCallInput{CallSID: "CA2", From: "+1", To: "+2"})
	_, _ = svc.CreateTranscription(ctx, CreateTranscriptionInput{CallID: a.ID, Text: "first"})

	items, err := svc.ListCallSummaries(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(items) != 2 || items[0].CallID != b.ID {
		t.Fatalf("expected newest first, got %+v", items)
	}
	if items[0].Transcription != nil || items[1].Transcription == nil || items[1].Transcription.Text != "first" {
		t.Fatalf("unexpected transcriptions: %+v", items)
	}
}

func TestService_RegisterInboundIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	a, err := svc.RegisterInbound(ctx, "CA1", "+1", "+2", nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, err := svc.RegisterInbound(ctx, "CA1", "+1", "+2", nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected same call for repeated webhook")
	}
}

func TestService_AttachRecording(t *testing.T) {
	ctx := context.Background()
	svc, repo, proc := newTestService()

	c, _ := svc.RegisterInbound(ctx, "CA1", "+1", "+2", nil)
	got, err := svc.AttachRecording(ctx, "CA1", "+1", "+2", "https://api.twilio.com/rec/RE1", 12)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.ID != c.ID || got.RecordingURL == "" || got.Duration != 12 {
		t.Fatalf("unexpected call: %+v", got)
	}
	if proc.count() != 1 {
		t.Fatalf("expected one submission, got %d", proc.count())
	}

	inProgress := StatusTranscriptionInProgress
	_, _ = repo.UpdateCall(ctx, c.ID, CallUpdate{Status: &inProgress})
	if _, err := svc.AttachRecording(ctx, "CA1", "+1", "+2", "https://api.twilio.com/rec/RE1", 12); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("expected no resubmission while in progress")
	}

	// unknown sid creates the call
	fresh, err := svc.AttachRecording(ctx, "CA9", "+1", "+2", "https://api.twilio.com/rec/RE9", 3)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if fresh.CallSID != "CA9" || proc.count() != 2 {
		t.Fatalf("expected created and submitted call")
	}
}

func TestService_Reprocess(t *testing.T) {
	ctx := context.Background()
	svc, repo, proc := newTestService()

	noRec, _ := svc.CreateCall(ctx, CreateCallInput{CallSID: "CA0", From: "+1", To: "+2"})
	var ve *ValidationError
	if _, err := svc.Reprocess(ctx, noRec.ID); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	c, _ := svc.CreateCall(ctx, CreateCallInput{CallSID: "CA1", From: "+1", To: "+2", RecordingURL: "a.mp3"})
	failed := StatusTranscriptionFailed
	_, _ = repo.UpdateCall(ctx, c.ID, CallUpdate{Status: &failed})
	if _, err := svc.Reprocess(ctx, c.ID); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if proc.count() != 2 {
		t.Fatalf("expected resubmission, got %d", proc.count())
	}

	complete := StatusTranscriptionComplete
	_, _ = repo.UpdateCall(ctx, c.ID, CallUpdate{Status: &complete})
	if _, err := svc.Reprocess(ctx, c.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestService_DeleteCall(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	c, _ := svc.CreateCall(ctx, CreateCallInput{CallSID: "CA1", From: "+1", To: "+2"})
	tr, _ := svc.CreateTranscription(ctx, CreateTranscriptionInput{CallID: c.ID, Text: "x"})

	if err := svc.DeleteCall(ctx, c.ID); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := svc.GetTranscription(ctx, tr.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cascade delete")
	}
}
