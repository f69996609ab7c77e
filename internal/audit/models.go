package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actorUserId,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actorRole,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP.
	IPAddress string `json:"ipAddress,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	CallID          string `json:"callId,omitempty" db:"call_id"`
	TranscriptionID string `json:"transcriptionId,omitempty" db:"transcription_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type EventType string

const (
	EventTypeCallDeleted            EventType = "call_deleted"
	EventTypeCallReprocessed        EventType = "call_reprocessed"
	EventTypeTranscriptionUpdated   EventType = "transcription_updated"
	EventTypeTranscriptionDeleted   EventType = "transcription_deleted"
	EventTypeTranscriptionReanalyze EventType = "transcription_reanalyzed"
)
