package ingestion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/replay"
	"orderflow-lab/internal/storage"
)

// DefaultBatchSize is the number of ticks written per InsertBulk call.
const DefaultBatchSize = 10_000

// Manager orchestrates ingestion from sources to storage.
// It enforces deterministic ordering, drops malformed ticks and relies on
// the storage layer for duplicate rejection.
type Manager struct {
	source    TickSource
	store     storage.TickStore
	batchSize int
	logger    *zap.Logger
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	Source    TickSource
	Store     storage.TickStore
	BatchSize int
	Logger    *zap.Logger
}

// NewManager creates a new ingestion manager with the provided source and store.
func NewManager(opts ManagerOptions) *Manager {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		source:    opts.Source,
		store:     opts.Store,
		batchSize: batch,
		logger:    logger,
	}
}

// IngestTicks fetches ticks from the source and stores them.
// Enforces deterministic ordering by (timestamp, seq).
// Returns count of ingested ticks and any error.
// Duplicates are rejected by the storage layer (ErrDuplicateKey).
func (m *Manager) IngestTicks(ctx context.Context, symbol string, from, to int64) (int, error) {
	if m.source == nil || m.store == nil {
		return 0, nil
	}

	ticks, err := m.source.Fetch(ctx, symbol, from, to)
	if err != nil {
		return 0, err
	}
	return m.Store(ctx, ticks)
}

// Store validates, orders and writes ticks in batches.
func (m *Manager) Store(ctx context.Context, ticks []*domain.Tick) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	valid := make([]*domain.Tick, 0, len(ticks))
	for _, t := range ticks {
		if err := ValidateTick(t); err != nil {
			m.logger.Warn("dropping tick", zap.Error(err))
			continue
		}
		valid = append(valid, t)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	// Enforce deterministic ordering
	replay.SortTicks(valid)
	if err := replay.ValidateOrdering(valid); err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}

	stored := 0
	for start := 0; start < len(valid); start += m.batchSize {
		end := min(start+m.batchSize, len(valid))
		if err := m.store.InsertBulk(ctx, valid[start:end]); err != nil {
			return stored, fmt.Errorf("insert ticks [%d:%d]: %w", start, end, err)
		}
		stored = end
	}

	m.logger.Info("ticks stored", zap.Int("count", stored))
	return stored, nil
}

// SliceSource serves ticks already in memory, e.g. a decoded CSV file.
type SliceSource struct {
	ticks []*domain.Tick
}

// NewSliceSource creates a TickSource over ticks.
func NewSliceSource(ticks []*domain.Tick) *SliceSource {
	return &SliceSource{ticks: ticks}
}

// Fetch implements TickSource.
func (s *SliceSource) Fetch(_ context.Context, symbol string, from, to int64) ([]*domain.Tick, error) {
	var out []*domain.Tick
	for _, t := range s.ticks {
		if t.Symbol == symbol && t.TimestampMs >= from && t.TimestampMs <= to {
			out = append(out, t)
		}
	}
	return out, nil
}

var _ TickSource = (*SliceSource)(nil)
