package memory

import (
	"context"
	"sort"
	"sync"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

type tickKey struct {
	symbol      string
	timestampMs int64
	seq         int64
}

// TickStore is an in-memory implementation of storage.TickStore.
type TickStore struct {
	mu   sync.RWMutex
	data map[tickKey]*domain.Tick // keyed by (symbol, timestamp_ms, seq)
}

// NewTickStore creates a new in-memory tick store.
func NewTickStore() *TickStore {
	return &TickStore{
		data: make(map[tickKey]*domain.Tick),
	}
}

// InsertBulk adds multiple ticks. Fails entire batch on duplicate.
func (s *TickStore) InsertBulk(_ context.Context, ticks []*domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[tickKey]struct{}, len(ticks))

	// First pass: validate and check for duplicates (existing + intra-batch)
	for _, t := range ticks {
		if t == nil || t.Symbol == "" || !t.Side.IsValid() || t.Volume < 0 {
			return storage.ErrInvalidInput
		}
		key := tickKey{t.Symbol, t.TimestampMs, t.Seq}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, t := range ticks {
		tickCopy := *t
		s.data[tickKey{t.Symbol, t.TimestampMs, t.Seq}] = &tickCopy
	}

	return nil
}

// GetBySymbol retrieves all ticks for a symbol, ordered by (timestamp, seq) ASC.
func (s *TickStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.Tick, error) {
	return s.collect(func(t *domain.Tick) bool {
		return t.Symbol == symbol
	}), nil
}

// GetByTimeRange retrieves ticks for a symbol within [start, end] (inclusive).
func (s *TickStore) GetByTimeRange(_ context.Context, symbol string, start, end int64) ([]*domain.Tick, error) {
	return s.collect(func(t *domain.Tick) bool {
		return t.Symbol == symbol && t.TimestampMs >= start && t.TimestampMs <= end
	}), nil
}

func (s *TickStore) collect(match func(*domain.Tick) bool) []*domain.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Tick
	for _, t := range s.data {
		if match(t) {
			tickCopy := *t
			result = append(result, &tickCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Before(result[j])
	})

	return result
}

var _ storage.TickStore = (*TickStore)(nil)
