package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps audit events in process memory, indexed by call. It backs
// local runs and tests.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	byCall map[string][]int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byCall: make(map[string][]int)}
}

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if e.CallID != "" {
		r.byCall[e.CallID] = append(r.byCall[e.CallID], len(r.events)-1)
	}
	return nil
}

// Events returns every event in append order.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// ForCall returns the history of one call in append order.
func (r *MemoryRepo) ForCall(callID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.byCall[callID]
	out := make([]Event, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.events[i])
	}
	return out
}
