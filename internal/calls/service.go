package calls

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Processor runs the transcription pipeline for a call in the background.
type Processor interface {
	Submit(callID, recordingRef string)
}

// Service is the core-facing API over calls and transcriptions.
//
// It owns input validation and the projections served to clients.
// Pipeline state transitions live in the pipeline package; this service only
// hands calls with a recording to the Processor.
type Service struct {
	repo     Repository
	proc     Processor
	validate *validator.Validate
	newID    func() string
}

func NewService(repo Repository, proc Processor) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{repo: repo, proc: proc, validate: v, newID: uuid.NewString}
}

type CreateCallInput struct {
	CallSID      string         `json:"callSid" validate:"required,max=64"`
	From         string         `json:"from" validate:"required,max=32"`
	To           string         `json:"to" validate:"required,max=32"`
	RecordingURL string         `json:"recordingUrl" validate:"omitempty,max=2048"`
	Duration     int            `json:"duration" validate:"gte=0"`
	Metadata     map[string]any `json:"metadata"`
}

type CreateTranscriptionInput struct {
	CallID     string  `json:"callId" validate:"required"`
	Text       string  `json:"text" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

type UpdateTranscriptionInput struct {
	Text       *string  `json:"text" validate:"omitempty,min=1"`
	Confidence *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return NewValidationError(fe.Field(), describeTag(fe))
	}
	return NewValidationError("", err.Error())
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must not be empty"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "is invalid"
	}
}

// validateMetadata rejects nested values; metadata holds primitives only.
func validateMetadata(m map[string]any) error {
	for k, v := range m {
		if k == "" {
			return NewValidationError("metadata", "keys must not be empty")
		}
		switch v.(type) {
		case nil, string, bool, float64, float32, int, int32, int64:
		default:
			return NewValidationError("metadata."+k, "must be a string, number, bool or null")
		}
	}
	return nil
}

// CreateCall stores a new pending call. When a recording is already known the
// pipeline is started for it.
func (s *Service) CreateCall(ctx context.Context, in CreateCallInput) (Call, error) {
	if err := s.check(in); err != nil {
		return Call{}, err
	}
	if err := validateMetadata(in.Metadata); err != nil {
		return Call{}, err
	}

	c, err := s.repo.CreateCall(ctx, Call{
		ID:           s.newID(),
		CallSID:      in.CallSID,
		From:         in.From,
		To:           in.To,
		Duration:     in.Duration,
		RecordingURL: in.RecordingURL,
		Status:       StatusPendingTranscription,
		Metadata:     in.Metadata,
	})
	if err != nil {
		return Call{}, WrapStoreErr("create call", err)
	}
	if c.RecordingURL != "" && s.proc != nil {
		s.proc.Submit(c.ID, c.RecordingURL)
	}
	return c, nil
}

func (s *Service) GetCall(ctx context.Context, id string) (Call, error) {
	c, err := s.repo.GetCall(ctx, id)
	return c, WrapStoreErr("get call", err)
}

func (s *Service) ListCalls(ctx context.Context) ([]Call, error) {
	cs, err := s.repo.ListCalls(ctx)
	return cs, WrapStoreErr("list calls", err)
}

// ListCallSummaries returns the list projection, newest first.
func (s *Service) ListCallSummaries(ctx context.Context) ([]CallListItem, error) {
	ds, err := s.repo.ListCallDetails(ctx)
	if err != nil {
		return nil, WrapStoreErr("list calls", err)
	}
	out := make([]CallListItem, 0, len(ds))
	for _, d := range ds {
		item := CallListItem{
			CallID:    d.Call.ID,
			Status:    d.Call.Status,
			From:      d.Call.From,
			To:        d.Call.To,
			CreatedAt: d.Call.CreatedAt,
		}
		if d.Transcription != nil {
			item.Transcription = &TranscriptionSummary{Text: d.Transcription.Text, Summary: d.Transcription.Summary}
		}
		out = append(out, item)
	}
	return out, nil
}

// ListCallDetails returns every call with its transcription inlined, newest first.
func (s *Service) ListCallDetails(ctx context.Context) ([]CallDetail, error) {
	ds, err := s.repo.ListCallDetails(ctx)
	return ds, WrapStoreErr("list calls", err)
}

// GetCallStatus returns the polling projection. It has no side effects.
func (s *Service) GetCallStatus(ctx context.Context, id string) (CallStatusView, error) {
	d, err := s.repo.GetCallDetail(ctx, id)
	if err != nil {
		return CallStatusView{}, WrapStoreErr("get call status", err)
	}
	return StatusView(d), nil
}

// StatusView projects a CallDetail for clients.
func StatusView(d CallDetail) CallStatusView {
	v := CallStatusView{
		CallID: d.Call.ID,
		Status: d.Call.Status,
		From:   d.Call.From,
		To:     d.Call.To,
	}
	if d.Transcription != nil {
		v.Transcription = &TranscriptionView{
			Text:       d.Transcription.Text,
			Summary:    d.Transcription.Summary,
			Categories: nonNil(d.Transcription.Categories),
			Tags:       nonNil(d.Transcription.Tags),
		}
	}
	return v
}

func (s *Service) DeleteCall(ctx context.Context, id string) error {
	return WrapStoreErr("delete call", s.repo.DeleteCall(ctx, id))
}

// CreateTranscription stores a manually supplied transcript and marks the call complete.
func (s *Service) CreateTranscription(ctx context.Context, in CreateTranscriptionInput) (Transcription, error) {
	if err := s.check(in); err != nil {
		return Transcription{}, err
	}
	t, err := s.repo.CreateTranscription(ctx, Transcription{
		ID:         s.newID(),
		CallID:     in.CallID,
		Text:       in.Text,
		Confidence: in.Confidence,
	})
	if err != nil {
		return Transcription{}, WrapStoreErr("create transcription", err)
	}
	status := StatusTranscriptionComplete
	if _, err := s.repo.UpdateCall(ctx, in.CallID, CallUpdate{Status: &status, TranscriptionID: &t.ID}); err != nil {
		return Transcription{}, WrapStoreErr("attach transcription", err)
	}
	return t, nil
}

func (s *Service) GetTranscription(ctx context.Context, id string) (Transcription, error) {
	t, err := s.repo.GetTranscription(ctx, id)
	return t, WrapStoreErr("get transcription", err)
}

// ListTranscriptions lists every transcription, or only those of callID when set.
func (s *Service) ListTranscriptions(ctx context.Context, callID string) ([]Transcription, error) {
	ts, err := s.repo.ListTranscriptions(ctx, callID)
	return ts, WrapStoreErr("list transcriptions", err)
}

func (s *Service) UpdateTranscription(ctx context.Context, id string, in UpdateTranscriptionInput) (Transcription, error) {
	if err := s.check(in); err != nil {
		return Transcription{}, err
	}
	t, err := s.repo.UpdateTranscription(ctx, id, TranscriptionUpdate{Text: in.Text, Confidence: in.Confidence})
	return t, WrapStoreErr("update transcription", err)
}

// DeleteTranscription removes the transcription and marks its call transcription_deleted.
func (s *Service) DeleteTranscription(ctx context.Context, id string) (Transcription, error) {
	t, err := s.repo.DeleteTranscription(ctx, id)
	return t, WrapStoreErr("delete transcription", err)
}

// RegisterInbound records a new inbound call from the telephony provider.
// Provider retries deliver the same CallSid; the existing call is returned for those.
func (s *Service) RegisterInbound(ctx context.Context, callSID, from, to string, metadata map[string]any) (Call, error) {
	c, err := s.CreateCall(ctx, CreateCallInput{CallSID: callSID, From: from, To: to, Metadata: metadata})
	if errors.Is(err, ErrDuplicateCallSID) {
		existing, err := s.repo.FindCallBySID(ctx, callSID)
		return existing, WrapStoreErr("find call", err)
	}
	return c, err
}

// AttachRecording stores the recording reported by the provider and starts the pipeline.
// A call not seen before is created on the spot. Calls already in progress or
// complete are updated but not resubmitted.
func (s *Service) AttachRecording(ctx context.Context, callSID, from, to, recordingURL string, duration int) (Call, error) {
	if recordingURL == "" {
		return Call{}, NewValidationError("recordingUrl", "is required")
	}
	if duration < 0 {
		duration = 0
	}

	c, err := s.repo.FindCallBySID(ctx, callSID)
	if errors.Is(err, ErrNotFound) {
		return s.CreateCall(ctx, CreateCallInput{
			CallSID:      callSID,
			From:         from,
			To:           to,
			RecordingURL: recordingURL,
			Duration:     duration,
		})
	}
	if err != nil {
		return Call{}, WrapStoreErr("find call", err)
	}

	c, err = s.repo.UpdateCall(ctx, c.ID, CallUpdate{RecordingURL: &recordingURL, Duration: &duration})
	if err != nil {
		return Call{}, WrapStoreErr("attach recording", err)
	}
	if c.Status.Processable() && s.proc != nil {
		s.proc.Submit(c.ID, c.RecordingURL)
	}
	return c, nil
}

// Reprocess restarts the pipeline for a call that is pending, failed or had its
// transcription deleted.
func (s *Service) Reprocess(ctx context.Context, id string) (Call, error) {
	c, err := s.repo.GetCall(ctx, id)
	if err != nil {
		return Call{}, WrapStoreErr("get call", err)
	}
	if !c.Status.Processable() {
		return Call{}, ErrConflict
	}
	if c.RecordingURL == "" {
		return Call{}, NewValidationError("recordingUrl", "call has no recording")
	}
	if s.proc != nil {
		s.proc.Submit(c.ID, c.RecordingURL)
	}
	return c, nil
}
