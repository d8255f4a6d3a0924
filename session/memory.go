package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStoreOptions configures the in-memory driver.
type MemoryStoreOptions struct {
	// TTL is the sliding idle expiry. Zero disables expiry.
	TTL time.Duration
	// Policy controls summarization.
	Policy Policy
	// Clock is injectable for TTL tests.
	Clock func() time.Time
}

type memoryEntry struct {
	rec      *Record
	deadline time.Time
}

// MemoryStore is a thread-safe in-memory Store with sliding TTL. Suited to
// tests and single-process deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	policy  Policy
	now     func() time.Time
}

// NewMemoryStore builds an in-memory store.
func NewMemoryStore(optFns ...func(o *MemoryStoreOptions)) *MemoryStore {
	opts := MemoryStoreOptions{
		TTL:    30 * time.Minute,
		Policy: DefaultPolicy(),
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     opts.TTL,
		policy:  opts.Policy,
		now:     opts.Clock,
	}
}

// expired must be called with the lock held.
func (s *MemoryStore) expired(e *memoryEntry) bool {
	return s.ttl > 0 && s.now().After(e.deadline)
}

// live returns the entry for id, dropping it when expired. Lock held.
func (s *MemoryStore) live(id string) *memoryEntry {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if s.expired(e) {
		delete(s.entries, id)
		return nil
	}
	return e
}

// Get implements Store. Reading refreshes the sliding TTL.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		return nil, nil
	}
	e.deadline = s.now().Add(s.ttl)
	return e.rec.Clone(), nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, id string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.live(id)
	if e == nil {
		e = &memoryEntry{rec: NewRecord(id, now)}
		s.entries[id] = e
	}
	changed := false
	for _, t := range turns {
		if e.rec.insertTurn(t) {
			changed = true
		}
	}
	if changed {
		e.rec.Updated = now
	}
	e.deadline = now.Add(s.ttl)
	return nil
}

// SummarizeIfNeeded implements Store.
func (s *MemoryStore) SummarizeIfNeeded(ctx context.Context, id string, summarize SummaryFunc) error {
	s.mu.Lock()
	e := s.live(id)
	if e == nil {
		s.mu.Unlock()
		return nil
	}
	snapshot := e.rec.Clone()
	s.mu.Unlock()

	// Summarization calls the reasoner, so it runs outside the lock on a
	// snapshot; the write-back below checks nothing new arrived meanwhile.
	changed, err := compact(ctx, snapshot, s.policy, summarize)
	if err != nil || !changed {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e = s.live(id)
	if e == nil {
		return nil
	}
	if e.rec.LastIndex != snapshot.LastIndex {
		// A concurrent append moved the record on; skip this round rather
		// than clobber it.
		return nil
	}
	snapshot.Updated = s.now()
	e.rec = snapshot
	e.deadline = s.now().Add(s.ttl)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}
