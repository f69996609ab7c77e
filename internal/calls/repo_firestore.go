package calls

import (
	"context"
	"errors"
	"slices"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

const (
	callsCollection          = "calls"
	transcriptionsCollection = "transcriptions"
)

// FirestoreRepo stores calls and transcriptions as Firestore documents keyed by their IDs.
// Timestamps are assigned by the server.
type FirestoreRepo struct {
	client *firestore.Client
}

func NewFirestoreRepo(client *firestore.Client) *FirestoreRepo {
	return &FirestoreRepo{client: client}
}

type callDoc struct {
	CallSID         string         `firestore:"callSid"`
	From            string         `firestore:"from"`
	To              string         `firestore:"to"`
	Duration        int            `firestore:"duration"`
	RecordingURL    string         `firestore:"recordingUrl"`
	TranscriptionID string         `firestore:"transcriptionId"`
	Status          string         `firestore:"status"`
	Metadata        map[string]any `firestore:"metadata"`
	CreatedAt       time.Time      `firestore:"createdAt,serverTimestamp"`
	UpdatedAt       time.Time      `firestore:"updatedAt,serverTimestamp"`
}

type transcriptionDoc struct {
	CallID     string    `firestore:"callId"`
	Text       string    `firestore:"text"`
	Confidence float64   `firestore:"confidence"`
	Summary    string    `firestore:"summary"`
	Categories []string  `firestore:"categories"`
	Tags       []string  `firestore:"tags"`
	CreatedAt  time.Time `firestore:"createdAt,serverTimestamp"`
	UpdatedAt  time.Time `firestore:"updatedAt,serverTimestamp"`
}

func (r *FirestoreRepo) calls() *firestore.CollectionRef {
	return r.client.Collection(callsCollection)
}

func (r *FirestoreRepo) transcriptions() *firestore.CollectionRef {
	return r.client.Collection(transcriptionsCollection)
}

func toCallDoc(c Call) callDoc {
	meta := c.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return callDoc{
		CallSID:         c.CallSID,
		From:            c.From,
		To:              c.To,
		Duration:        c.Duration,
		RecordingURL:    c.RecordingURL,
		TranscriptionID: c.TranscriptionID,
		Status:          string(c.Status),
		Metadata:        meta,
	}
}

func callFromSnapshot(snap *firestore.DocumentSnapshot) (Call, error) {
	var d callDoc
	if err := snap.DataTo(&d); err != nil {
		return Call{}, err
	}
	c := Call{
		ID:              snap.Ref.ID,
		CallSID:         d.CallSID,
		From:            d.From,
		To:              d.To,
		Duration:        d.Duration,
		RecordingURL:    d.RecordingURL,
		TranscriptionID: d.TranscriptionID,
		Status:          CallStatus(d.Status),
		Metadata:        d.Metadata,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return c, nil
}

func transcriptionFromSnapshot(snap *firestore.DocumentSnapshot) (Transcription, error) {
	var d transcriptionDoc
	if err := snap.DataTo(&d); err != nil {
		return Transcription{}, err
	}
	return Transcription{
		ID:         snap.Ref.ID,
		CallID:     d.CallID,
		Text:       d.Text,
		Confidence: d.Confidence,
		Summary:    d.Summary,
		Categories: nonNil(d.Categories),
		Tags:       nonNil(d.Tags),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

// notFound maps a missing-document read to ErrNotFound.
// Firestore returns a non-nil snapshot with Exists() == false alongside a NotFound status.
func notFound(snap *firestore.DocumentSnapshot, err error) error {
	if snap != nil && !snap.Exists() {
		return ErrNotFound
	}
	return err
}

func (r *FirestoreRepo) CreateCall(ctx context.Context, c Call) (Call, error) {
	ref := r.calls().Doc(c.ID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		dupes, err := tx.Documents(r.calls().Where("callSid", "==", c.CallSID).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(dupes) > 0 {
			return ErrDuplicateCallSID
		}
		return tx.Create(ref, toCallDoc(c))
	})
	if err != nil {
		return Call{}, err
	}
	return r.GetCall(ctx, c.ID)
}

func (r *FirestoreRepo) GetCall(ctx context.Context, id string) (Call, error) {
	snap, err := r.calls().Doc(id).Get(ctx)
	if err != nil {
		return Call{}, notFound(snap, err)
	}
	return callFromSnapshot(snap)
}

func (r *FirestoreRepo) FindCallBySID(ctx context.Context, callSID string) (Call, error) {
	snaps, err := r.calls().Where("callSid", "==", callSID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return Call{}, err
	}
	if len(snaps) == 0 {
		return Call{}, ErrNotFound
	}
	return callFromSnapshot(snaps[0])
}

func (r *FirestoreRepo) ListCalls(ctx context.Context) ([]Call, error) {
	it := r.calls().OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer it.Stop()

	out := make([]Call, 0)
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		c, err := callFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *FirestoreRepo) UpdateCall(ctx context.Context, id string, u CallUpdate) (Call, error) {
	u = u.normalized()
	ref := r.calls().Doc(id)

	updates := []firestore.Update{{Path: "updatedAt", Value: firestore.ServerTimestamp}}
	if u.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*u.Status)})
	}
	if u.TranscriptionID != nil {
		updates = append(updates, firestore.Update{Path: "transcriptionId", Value: *u.TranscriptionID})
	}
	if u.RecordingURL != nil {
		updates = append(updates, firestore.Update{Path: "recordingUrl", Value: *u.RecordingURL})
	}
	if u.Duration != nil {
		updates = append(updates, firestore.Update{Path: "duration", Value: *u.Duration})
	}
	for k, v := range u.Metadata {
		// FieldPath keeps keys containing dots intact.
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"metadata", k}, Value: v})
	}

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return notFound(snap, err)
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		return Call{}, err
	}
	return r.GetCall(ctx, id)
}

func (r *FirestoreRepo) DeleteCall(ctx context.Context, id string) error {
	ref := r.calls().Doc(id)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return notFound(snap, err)
		}
		owned, err := tx.Documents(r.transcriptions().Where("callId", "==", id)).GetAll()
		if err != nil {
			return err
		}
		for _, t := range owned {
			if err := tx.Delete(t.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	})
}

func (r *FirestoreRepo) GetCallDetail(ctx context.Context, id string) (CallDetail, error) {
	c, err := r.GetCall(ctx, id)
	if err != nil {
		return CallDetail{}, err
	}
	d := CallDetail{Call: c}
	if c.TranscriptionID == "" {
		return d, nil
	}
	t, err := r.GetTranscription(ctx, c.TranscriptionID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return CallDetail{}, err
	default:
		d.Transcription = &t
	}
	return d, nil
}

func (r *FirestoreRepo) ListCallDetails(ctx context.Context) ([]CallDetail, error) {
	cs, err := r.ListCalls(ctx)
	if err != nil {
		return nil, err
	}
	var refs []*firestore.DocumentRef
	for _, c := range cs {
		if c.TranscriptionID != "" {
			refs = append(refs, r.transcriptions().Doc(c.TranscriptionID))
		}
	}
	byID := map[string]Transcription{}
	if len(refs) > 0 {
		snaps, err := r.client.GetAll(ctx, refs)
		if err != nil {
			return nil, err
		}
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			t, err := transcriptionFromSnapshot(snap)
			if err != nil {
				return nil, err
			}
			byID[t.ID] = t
		}
	}

	out := make([]CallDetail, 0, len(cs))
	for _, c := range cs {
		d := CallDetail{Call: c}
		if t, ok := byID[c.TranscriptionID]; ok {
			d.Transcription = &t
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *FirestoreRepo) CreateTranscription(ctx context.Context, t Transcription) (Transcription, error) {
	callRef := r.calls().Doc(t.CallID)
	ref := r.transcriptions().Doc(t.ID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(callRef)
		if err != nil {
			return notFound(snap, err)
		}
		return tx.Create(ref, transcriptionDoc{
			CallID:     t.CallID,
			Text:       t.Text,
			Confidence: t.Confidence,
			Summary:    t.Summary,
			Categories: nonNil(t.Categories),
			Tags:       nonNil(t.Tags),
		})
	})
	if err != nil {
		return Transcription{}, err
	}
	return r.GetTranscription(ctx, t.ID)
}

func (r *FirestoreRepo) GetTranscription(ctx context.Context, id string) (Transcription, error) {
	snap, err := r.transcriptions().Doc(id).Get(ctx)
	if err != nil {
		return Transcription{}, notFound(snap, err)
	}
	return transcriptionFromSnapshot(snap)
}

func (r *FirestoreRepo) ListTranscriptions(ctx context.Context, callID string) ([]Transcription, error) {
	q := r.transcriptions().Query
	if callID != "" {
		q = q.Where("callId", "==", callID)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]Transcription, 0, len(snaps))
	for _, snap := range snaps {
		t, err := transcriptionFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	// sorted here rather than in the query to avoid a composite index on (callId, createdAt)
	slices.SortFunc(out, func(a, b Transcription) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *FirestoreRepo) UpdateTranscription(ctx context.Context, id string, u TranscriptionUpdate) (Transcription, error) {
	ref := r.transcriptions().Doc(id)

	updates := []firestore.Update{{Path: "updatedAt", Value: firestore.ServerTimestamp}}
	if u.Text != nil {
		updates = append(updates, firestore.Update{Path: "text", Value: *u.Text})
	}
	if u.Confidence != nil {
		updates = append(updates, firestore.Update{Path: "confidence", Value: *u.Confidence})
	}
	if u.Analysis != nil {
		updates = append(updates,
			firestore.Update{Path: "summary", Value: u.Analysis.Summary},
			firestore.Update{Path: "categories", Value: nonNil(u.Analysis.Categories)},
			firestore.Update{Path: "tags", Value: nonNil(u.Analysis.Tags)},
		)
	}

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return notFound(snap, err)
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		return Transcription{}, err
	}
	return r.GetTranscription(ctx, id)
}

func (r *FirestoreRepo) DeleteTranscription(ctx context.Context, id string) (Transcription, error) {
	ref := r.transcriptions().Doc(id)
	var out Transcription
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return notFound(snap, err)
		}
		out, err = transcriptionFromSnapshot(snap)
		if err != nil {
			return err
		}

		callRef := r.calls().Doc(out.CallID)
		callSnap, err := tx.Get(callRef)
		detach := false
		switch {
		case err == nil:
			c, err := callFromSnapshot(callSnap)
			if err != nil {
				return err
			}
			detach = c.TranscriptionID == id
		case errors.Is(notFound(callSnap, err), ErrNotFound):
		default:
			return err
		}

		if err := tx.Delete(ref); err != nil {
			return err
		}
		if !detach {
			return nil
		}
		return tx.Update(callRef, []firestore.Update{
			{Path: "transcriptionId", Value: ""},
			{Path: "status", Value: string(StatusTranscriptionDeleted)},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		})
	})
	if err != nil {
		return Transcription{}, err
	}
	return out, nil
}
