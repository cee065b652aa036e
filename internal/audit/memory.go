package audit

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps audit entries in memory for tests and development mode.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *MemoryStore) ListBySubject(ctx context.Context, subjectID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.SubjectID == subjectID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}
