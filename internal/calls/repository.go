package calls

import "context"

// Repository is the persistence contract for calls and transcriptions.
//
// Implementations assign CreatedAt/UpdatedAt. Callers assign IDs.
// Field updates are last-write-wins; the two delete operations are atomic.
type Repository interface {
	CreateCall(ctx context.Context, c Call) (Call, error)
	GetCall(ctx context.Context, id string) (Call, error)
	FindCallBySID(ctx context.Context, callSID string) (Call, error)
	// ListCalls returns calls newest first.
	ListCalls(ctx context.Context) ([]Call, error)
	UpdateCall(ctx context.Context, id string, u CallUpdate) (Call, error)
	// DeleteCall removes the call and every transcription that references it.
	DeleteCall(ctx context.Context, id string) error

	// GetCallDetail and ListCallDetails inline the referenced transcription.
	GetCallDetail(ctx context.Context, id string) (CallDetail, error)
	ListCallDetails(ctx context.Context) ([]CallDetail, error)

	// CreateTranscription fails with ErrNotFound when the owning call does not exist.
	CreateTranscription(ctx context.Context, t Transcription) (Transcription, error)
	GetTranscription(ctx context.Context, id string) (Transcription, error)
	// ListTranscriptions returns transcriptions newest first, optionally for one call.
	ListTranscriptions(ctx context.Context, callID string) ([]Transcription, error)
	UpdateTranscription(ctx context.Context, id string, u TranscriptionUpdate) (Transcription, error)
	// DeleteTranscription removes the transcription. If its call still references it,
	// the reference is cleared and the call status set to transcription_deleted.
	DeleteTranscription(ctx context.Context, id string) (Transcription, error)
}
