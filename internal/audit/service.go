package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records operator actions on calls and transcriptions.
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.CallID == "" && e.TranscriptionID == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// Actor identifies who performed an audited action.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// LogCallAction records an action on a call, optionally naming the transcription involved.
func (s *Service) LogCallAction(ctx context.Context, actor Actor, typ EventType, callID, transcriptionID, message string) error {
	return s.Append(ctx, Event{
		Type:            typ,
		ActorUserID:     actor.UserID,
		ActorRole:       actor.Role,
		IPAddress:       actor.IP,
		CallID:          callID,
		TranscriptionID: transcriptionID,
		Message:         message,
	})
}
