package calls

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
// Records are copied on the way in and out so callers never share slices or maps with the store.
type MemoryRepo struct {
	mu             sync.Mutex
	calls          map[string]Call
	transcriptions map[string]Transcription
	clock          func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		calls:          map[string]Call{},
		transcriptions: map[string]Transcription{},
		clock:          time.Now,
	}
}

func (r *MemoryRepo) now() time.Time { return r.clock().UTC() }

func (r *MemoryRepo) CreateCall(ctx context.Context, c Call) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.calls {
		if existing.CallSID == c.CallSID {
			return Call{}, ErrDuplicateCallSID
		}
	}
	now := r.now()
	c.CreatedAt, c.UpdatedAt = now, now
	c = copyCall(c)
	r.calls[c.ID] = c
	return copyCall(c), nil
}

func (r *MemoryRepo) GetCall(ctx context.Context, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return copyCall(c), nil
}

func (r *MemoryRepo) FindCallBySID(ctx context.Context, callSID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.CallSID == callSID {
			return copyCall(c), nil
		}
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) ListCalls(ctx context.Context) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, copyCall(c))
	}
	slices.SortFunc(out, func(a, b Call) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpdateCall(ctx context.Context, id string, u CallUpdate) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	u = u.normalized()
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.TranscriptionID != nil {
		c.TranscriptionID = *u.TranscriptionID
	}
	if u.RecordingURL != nil {
		c.RecordingURL = *u.RecordingURL
	}
	if u.Duration != nil {
		c.Duration = *u.Duration
	}
	if len(u.Metadata) > 0 {
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		maps.Copy(c.Metadata, u.Metadata)
	}
	c.UpdatedAt = r.now()
	r.calls[id] = c
	return copyCall(c), nil
}

func (r *MemoryRepo) DeleteCall(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[id]; !ok {
		return ErrNotFound
	}
	delete(r.calls, id)
	for tid, t := range r.transcriptions {
		if t.CallID == id {
			delete(r.transcriptions, tid)
		}
	}
	return nil
}

func (r *MemoryRepo) GetCallDetail(ctx context.Context, id string) (CallDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return CallDetail{}, ErrNotFound
	}
	return r.detailLocked(c), nil
}

func (r *MemoryRepo) ListCallDetails(ctx context.Context) ([]CallDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallDetail, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, r.detailLocked(c))
	}
	slices.SortFunc(out, func(a, b CallDetail) int { return b.Call.CreatedAt.Compare(a.Call.CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) detailLocked(c Call) CallDetail {
	d := CallDetail{Call: copyCall(c)}
	if c.TranscriptionID != "" {
		if t, ok := r.transcriptions[c.TranscriptionID]; ok {
			t = copyTranscription(t)
			d.Transcription = &t
		}
	}
	return d
}

func (r *MemoryRepo) CreateTranscription(ctx context.Context, t Transcription) (Transcription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[t.CallID]; !ok {
		return Transcription{}, ErrNotFound
	}
	now := r.now()
	t.CreatedAt, t.UpdatedAt = now, now
	t = copyTranscription(t)
	r.transcriptions[t.ID] = t
	return copyTranscription(t), nil
}

func (r *MemoryRepo) GetTranscription(ctx context.Context, id string) (Transcription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transcriptions[id]
	if !ok {
		return Transcription{}, ErrNotFound
	}
	return copyTranscription(t), nil
}

func (r *MemoryRepo) ListTranscriptions(ctx context.Context, callID string) ([]Transcription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transcription, 0, len(r.transcriptions))
	for _, t := range r.transcriptions {
		if callID != "" && t.CallID != callID {
			continue
		}
		out = append(out, copyTranscription(t))
	}
	slices.SortFunc(out, func(a, b Transcription) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpdateTranscription(ctx context.Context, id string, u TranscriptionUpdate) (Transcription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transcriptions[id]
	if !ok {
		return Transcription{}, ErrNotFound
	}
	if u.Text != nil {
		t.Text = *u.Text
	}
	if u.Confidence != nil {
		t.Confidence = *u.Confidence
	}
	if u.Analysis != nil {
		t.Summary = u.Analysis.Summary
		t.Categories = nonNil(slices.Clone(u.Analysis.Categories))
		t.Tags = nonNil(slices.Clone(u.Analysis.Tags))
	}
	t.UpdatedAt = r.now()
	r.transcriptions[id] = t
	return copyTranscription(t), nil
}

func (r *MemoryRepo) DeleteTranscription(ctx context.Context, id string) (Transcription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transcriptions[id]
	if !ok {
		return Transcription{}, ErrNotFound
	}
	delete(r.transcriptions, id)
	if c, ok := r.calls[t.CallID]; ok && c.TranscriptionID == id {
		c.TranscriptionID = ""
		c.Status = StatusTranscriptionDeleted
		c.UpdatedAt = r.now()
		r.calls[c.ID] = c
	}
	return copyTranscription(t), nil
}

func copyCall(c Call) Call {
	c.Metadata = maps.Clone(c.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return c
}

func copyTranscription(t Transcription) Transcription {
	t.Categories = nonNil(slices.Clone(t.Categories))
	t.Tags = nonNil(slices.Clone(t.Tags))
	return t
}
