package audit

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
)

const eventsCollection = "audit_events"

// FirestoreRepo writes each event as a new document. Create fails on an existing ID,
// which keeps the log append-only.
type FirestoreRepo struct {
	client *firestore.Client
}

func NewFirestoreRepo(client *firestore.Client) *FirestoreRepo { return &FirestoreRepo{client: client} }

type eventDoc struct {
	Type            string    `firestore:"type"`
	ActorUserID     string    `firestore:"actorUserId"`
	ActorRole       string    `firestore:"actorRole"`
	IPAddress       string    `firestore:"ipAddress"`
	CallID          string    `firestore:"callId"`
	TranscriptionID string    `firestore:"transcriptionId"`
	Message         string    `firestore:"message"`
	Metadata        string    `firestore:"metadata"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

func (r *FirestoreRepo) Append(ctx context.Context, e Event) error {
	_, err := r.client.Collection(eventsCollection).Doc(e.ID).Create(ctx, eventDoc{
		Type:            string(e.Type),
		ActorUserID:     e.ActorUserID,
		ActorRole:       e.ActorRole,
		IPAddress:       e.IPAddress,
		CallID:          e.CallID,
		TranscriptionID: e.TranscriptionID,
		Message:         e.Message,
		Metadata:        e.Metadata,
		CreatedAt:       e.CreatedAt,
	})
	return err
}
