package memory

import (
	"context"
	"sort"
	"sync"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

type signalKey struct {
	runID string
	index int
}

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[signalKey]*domain.SignalRecord // keyed by (run_id, idx)
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		data: make(map[signalKey]*domain.SignalRecord),
	}
}

// InsertBulk adds multiple signals atomically. Fails entire batch on any duplicate.
func (s *SignalStore) InsertBulk(_ context.Context, signals []*domain.SignalRecord) error {
	if len(signals) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[signalKey]struct{}, len(signals))

	for _, r := range signals {
		if r == nil || r.RunID == "" || !r.Kind.IsValid() || !r.Mode.IsValid() {
			return storage.ErrInvalidInput
		}
		key := signalKey{r.RunID, r.Index}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range signals {
		recordCopy := *r
		s.data[signalKey{r.RunID, r.Index}] = &recordCopy
	}

	return nil
}

// GetByRun retrieves all signals of a run, ordered by idx ASC.
func (s *SignalStore) GetByRun(_ context.Context, runID string) ([]*domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalRecord
	for key, r := range s.data {
		if key.runID == runID {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Index < result[j].Index
	})

	return result, nil
}

var _ storage.SignalStore = (*SignalStore)(nil)
