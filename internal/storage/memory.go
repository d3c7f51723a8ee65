package storage

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/xaenox/engagebot/internal/models"
)

// MemoryStore keeps entries in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []RawEntry
}

func NewMemoryStore(seed ...RawEntry) *MemoryStore {
	return &MemoryStore{entries: append([]RawEntry(nil), seed...)}
}

func (s *MemoryStore) Load(ctx context.Context, since time.Time) ([]RawEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RawEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, RawEntry{Key: e.Key, Timestamp: e.Timestamp, Metadata: maps.Clone(e.Metadata)})
	}
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, entry models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, RawEntry{
		Key:       entry.Key,
		Timestamp: FormatTimestamp(entry.Timestamp),
		Metadata:  maps.Clone(entry.Metadata),
	})
	return nil
}

// Entries returns a copy of everything appended so far.
func (s *MemoryStore) Entries() []RawEntry {
	entries, _ := s.Load(context.Background(), time.Time{})
	return entries
}

func (s *MemoryStore) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
