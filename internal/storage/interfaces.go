package storage

import (
	"context"

	"orderflow-lab/internal/domain"
)

// TickStore provides access to raw tick storage.
type TickStore interface {
	// InsertBulk adds multiple ticks. Fails entire batch on duplicate (symbol, timestamp_ms, seq).
	InsertBulk(ctx context.Context, ticks []*domain.Tick) error

	// GetBySymbol retrieves all ticks for a symbol, ordered by (timestamp_ms, seq) ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.Tick, error)

	// GetByTimeRange retrieves ticks for a symbol within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.Tick, error)
}

// TradeStore provides access to the append-only trade ledger.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// GetByRun retrieves all trades of a run, ordered by (entry_time_ms, trade_id) ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.Trade, error)
}

// SignalStore provides access to persisted causal signals.
type SignalStore interface {
	// InsertBulk adds multiple signals atomically. Fails entire batch on duplicate (run_id, idx).
	InsertBulk(ctx context.Context, signals []*domain.SignalRecord) error

	// GetByRun retrieves all signals of a run, ordered by idx ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.SignalRecord, error)
}
