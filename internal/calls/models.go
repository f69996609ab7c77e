package calls

import "time"

// Call is one inbound phone interaction tracked through the transcription pipeline.
//
// Invariant: a Call never holds a TranscriptionID while its status is transcription_failed.
//
// Metadata is an open string-keyed map of primitive values (string, number, bool, null).
// No schema is enforced; producers should stick to a stable key set if consumers rely on it.
type Call struct {
	ID      string `json:"id" db:"id"`
	CallSID string `json:"callSid" db:"call_sid"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	// Duration is the call duration in seconds.
	Duration int `json:"duration" db:"duration"`

	// RecordingURL is a local path, an http(s) provider URL or a gs:// object.
	RecordingURL    string `json:"recordingUrl,omitempty" db:"recording_url"`
	TranscriptionID string `json:"transcriptionId,omitempty" db:"transcription_id"`

	Status   CallStatus     `json:"status" db:"status"`
	Metadata map[string]any `json:"metadata" db:"metadata"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type CallStatus string

const (
	StatusPendingTranscription    CallStatus = "pending_transcription"
	StatusTranscriptionInProgress CallStatus = "transcription_in_progress"
	StatusTranscriptionComplete   CallStatus = "transcription_complete"
	StatusTranscriptionFailed     CallStatus = "transcription_failed"
	StatusTranscriptionDeleted    CallStatus = "transcription_deleted"
)

// AllStatuses lists the closed set of call states in pipeline order.
var AllStatuses = []CallStatus{
	StatusPendingTranscription,
	StatusTranscriptionInProgress,
	StatusTranscriptionComplete,
	StatusTranscriptionFailed,
	StatusTranscriptionDeleted,
}

func (s CallStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether the pipeline stops on its own in this state.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusTranscriptionComplete, StatusTranscriptionFailed, StatusTranscriptionDeleted:
		return true
	default:
		return false
	}
}

// Processable reports whether a pipeline run may start from this state.
// Completed calls keep their transcription; re-run analysis on them instead.
func (s CallStatus) Processable() bool {
	switch s {
	case StatusPendingTranscription, StatusTranscriptionFailed, StatusTranscriptionDeleted:
		return true
	default:
		return false
	}
}

// PlaceholderConfidence is stored on every pipeline transcription.
// Whisper does not report a confidence score; this is a fixed marker, not a measurement.
const PlaceholderConfidence = 0.9

// Transcription is the speech-to-text output for a call plus its derived analysis.
type Transcription struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"callId" db:"call_id"`
	Text   string `json:"text" db:"text"`

	// Confidence is informational only. See PlaceholderConfidence.
	Confidence float64 `json:"confidence" db:"confidence"`

	Summary    string   `json:"summary,omitempty" db:"summary"`
	Categories []string `json:"categories" db:"categories"`
	Tags       []string `json:"tags" db:"tags"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Analysis is the language-model derived part of a Transcription.
type Analysis struct {
	Summary    string
	Categories []string
	Tags       []string
}

// CallUpdate carries a partial Call mutation. Nil fields are left unchanged.
type CallUpdate struct {
	Status *CallStatus
	// TranscriptionID set to "" clears the reference.
	TranscriptionID *string
	RecordingURL    *string
	Duration        *int
	// Metadata keys are merged into the existing map.
	Metadata map[string]any
}

// normalized enforces the failed-status invariant on an update.
func (u CallUpdate) normalized() CallUpdate {
	if u.Status != nil && *u.Status == StatusTranscriptionFailed {
		empty := ""
		u.TranscriptionID = &empty
	}
	return u
}

// TranscriptionUpdate carries a partial Transcription mutation. Nil fields are left unchanged.
type TranscriptionUpdate struct {
	Text       *string
	Confidence *float64
	Analysis   *Analysis
}

// CallDetail is a Call with its referenced Transcription inlined, if any.
type CallDetail struct {
	Call          Call
	Transcription *Transcription
}

// CallStatusView is the polling projection returned to clients.
type CallStatusView struct {
	CallID        string             `json:"callId"`
	Status        CallStatus         `json:"status"`
	From          string             `json:"from"`
	To            string             `json:"to"`
	Transcription *TranscriptionView `json:"transcription"`
}

type TranscriptionView struct {
	Text       string   `json:"text"`
	Summary    string   `json:"summary"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// CallListItem is the list projection; it carries only the transcript text and summary.
type CallListItem struct {
	CallID        string                `json:"callId"`
	Status        CallStatus            `json:"status"`
	From          string                `json:"from"`
	To            string                `json:"to"`
	CreatedAt     time.Time             `json:"createdAt"`
	Transcription *TranscriptionSummary `json:"transcription"`
}

type TranscriptionSummary struct {
	Text    string `json:"text"`
	Summary string `json:"summary"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
