package clickhouse

import (
	"context"
	"fmt"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

// TickStore implements storage.TickStore using ClickHouse.
type TickStore struct {
	conn *Conn
}

// NewTickStore creates a new TickStore.
func NewTickStore(conn *Conn) *TickStore {
	return &TickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickStore = (*TickStore)(nil)

type tickKey struct {
	symbol      string
	timestampMs int64
	seq         int64
}

// InsertBulk adds multiple ticks. Fails entire batch on duplicate (symbol, timestamp_ms, seq).
// MergeTree does not enforce uniqueness, so duplicates are checked before the batch is sent.
func (s *TickStore) InsertBulk(ctx context.Context, ticks []*domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	// Check for intra-batch duplicates and collect the span per symbol
	type span struct{ from, to int64 }
	spans := make(map[string]*span)
	seen := make(map[tickKey]struct{}, len(ticks))
	for _, t := range ticks {
		if t == nil || t.Symbol == "" || !t.Side.IsValid() {
			return storage.ErrInvalidInput
		}
		k := tickKey{t.Symbol, t.TimestampMs, t.Seq}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}

		sp, ok := spans[t.Symbol]
		if !ok {
			spans[t.Symbol] = &span{t.TimestampMs, t.TimestampMs}
			continue
		}
		if t.TimestampMs < sp.from {
			sp.from = t.TimestampMs
		}
		if t.TimestampMs > sp.to {
			sp.to = t.TimestampMs
		}
	}

	// Check for duplicates against existing DB rows
	for symbol, sp := range spans {
		existing, err := s.existingKeys(ctx, symbol, sp.from, sp.to)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for k := range existing {
			if _, clash := seen[k]; clash {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ticks (
			symbol, timestamp_ms, seq, price, volume, side
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		err = batch.Append(t.Symbol, t.TimestampMs, t.Seq, t.Price, t.Volume, string(t.Side))
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySymbol retrieves all ticks for a symbol, ordered by (timestamp_ms, seq) ASC.
func (s *TickStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Tick, error) {
	query := `
		SELECT symbol, timestamp_ms, seq, price, volume, side
		FROM ticks
		WHERE symbol = ?
		ORDER BY timestamp_ms ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query by symbol: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

// GetByTimeRange retrieves ticks for a symbol within [start, end] (inclusive).
func (s *TickStore) GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.Tick, error) {
	query := `
		SELECT symbol, timestamp_ms, seq, price, volume, side
		FROM ticks
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

// existingKeys returns the keys already stored for symbol within [from, to].
func (s *TickStore) existingKeys(ctx context.Context, symbol string, from, to int64) (map[tickKey]struct{}, error) {
	query := `
		SELECT timestamp_ms, seq FROM ticks
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
	`

	rows, err := s.conn.Query(ctx, query, symbol, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[tickKey]struct{})
	for rows.Next() {
		var ts, seq int64
		if err := rows.Scan(&ts, &seq); err != nil {
			return nil, err
		}
		keys[tickKey{symbol, ts, seq}] = struct{}{}
	}
	return keys, rows.Err()
}

// scanTicks scans multiple rows.
func scanTicks(rows chRows) ([]*domain.Tick, error) {
	var ticks []*domain.Tick

	for rows.Next() {
		var t domain.Tick
		var side string

		err := rows.Scan(&t.Symbol, &t.TimestampMs, &t.Seq, &t.Price, &t.Volume, &side)
		if err != nil {
			return nil, fmt.Errorf("scan tick row: %w", err)
		}

		t.Side = domain.Side(side)
		ticks = append(ticks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick rows: %w", err)
	}

	return ticks, nil
}
