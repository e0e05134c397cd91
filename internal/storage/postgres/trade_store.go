package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const insertTradeQuery = `
	INSERT INTO trades (
		trade_id, run_id, symbol, mode,
		side, signal_kind, signal_time_ms,
		entry_time_ms, entry_price, take_profit_price, stop_loss_price,
		exit_time_ms, exit_price, exit_reason,
		contracts, profit_points, profit_dollars
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7,
		$8, $9, $10, $11,
		$12, $13, $14,
		$15, $16, $17
	)
`

const selectTradeColumns = `
	SELECT
		trade_id, run_id, symbol, mode,
		side, signal_kind, signal_time_ms,
		entry_time_ms, entry_price, take_profit_price, stop_loss_price,
		exit_time_ms, exit_price, exit_reason,
		contracts, profit_points, profit_dollars
	FROM trades
`

func tradeArgs(t *domain.Trade) []any {
	return []any{
		t.TradeID, t.RunID, t.Symbol, string(t.Mode),
		string(t.Side), string(t.SignalKind), t.SignalTimeMs,
		t.EntryTimeMs, t.EntryPrice, t.TakeProfitPrice, t.StopLossPrice,
		t.ExitTimeMs, t.ExitPrice, string(t.ExitReason),
		t.Contracts, t.ProfitPoints, t.ProfitDollars,
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeQuery, tradeArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTradeQuery, tradeArgs(t)...)
	}
	if err := s.pool.execBatch(ctx, batch); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trades: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	row := s.pool.QueryRow(ctx, selectTradeColumns+`WHERE trade_id = $1`, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetByRun retrieves all trades of a run, ordered by (entry_time_ms, trade_id) ASC.
func (s *TradeStore) GetByRun(ctx context.Context, runID string) ([]*domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		selectTradeColumns+`WHERE run_id = $1 ORDER BY entry_time_ms ASC, trade_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("get trades by run: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var (
		t                            domain.Trade
		mode, side, kind, exitReason string
	)

	err := row.Scan(
		&t.TradeID, &t.RunID, &t.Symbol, &mode,
		&side, &kind, &t.SignalTimeMs,
		&t.EntryTimeMs, &t.EntryPrice, &t.TakeProfitPrice, &t.StopLossPrice,
		&t.ExitTimeMs, &t.ExitPrice, &exitReason,
		&t.Contracts, &t.ProfitPoints, &t.ProfitDollars,
	)
	if err != nil {
		return nil, err
	}

	t.Mode = domain.SignalMode(mode)
	t.Side = domain.PositionSide(side)
	t.SignalKind = domain.SignalKind(kind)
	t.ExitReason = domain.ExitReason(exitReason)
	return &t, nil
}
