package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

const insertSignalQuery = `
	INSERT INTO signals (
		run_id, idx, symbol, timestamp_ms, trigger_price,
		kind, side, mode,
		detection_time_ms, detection_price, zscore,
		bid_density, ask_density, net_density
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8,
		$9, $10, $11,
		$12, $13, $14
	)
`

// InsertBulk adds multiple signals atomically. Fails entire batch on duplicate (run_id, idx).
func (s *SignalStore) InsertBulk(ctx context.Context, signals []*domain.SignalRecord) error {
	if len(signals) == 0 {
		return nil
	}
	for _, r := range signals {
		if r == nil || r.RunID == "" || !r.Kind.IsValid() || !r.Mode.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	batch := &pgx.Batch{}
	for _, r := range signals {
		batch.Queue(insertSignalQuery,
			r.RunID, r.Index, r.Symbol, r.TimestampMs, r.TriggerPrice,
			string(r.Kind), string(r.Side), string(r.Mode),
			r.DetectionTimeMs, r.DetectionPrice, r.ZScore,
			r.BidDensity, r.AskDensity, r.NetDensity,
		)
	}
	if err := s.pool.execBatch(ctx, batch); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert signals: %w", err)
	}
	return nil
}

// GetByRun retrieves all signals of a run, ordered by idx ASC.
func (s *SignalStore) GetByRun(ctx context.Context, runID string) ([]*domain.SignalRecord, error) {
	query := `
		SELECT
			run_id, idx, symbol, timestamp_ms, trigger_price,
			kind, side, mode,
			detection_time_ms, detection_price, zscore,
			bid_density, ask_density, net_density
		FROM signals
		WHERE run_id = $1
		ORDER BY idx ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get signals by run: %w", err)
	}
	defer rows.Close()

	var records []*domain.SignalRecord
	for rows.Next() {
		var (
			r                domain.SignalRecord
			kind, side, mode string
		)
		err := rows.Scan(
			&r.RunID, &r.Index, &r.Symbol, &r.TimestampMs, &r.TriggerPrice,
			&kind, &side, &mode,
			&r.DetectionTimeMs, &r.DetectionPrice, &r.ZScore,
			&r.BidDensity, &r.AskDensity, &r.NetDensity,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		r.Kind = domain.SignalKind(kind)
		r.Side = domain.Side(side)
		r.Mode = domain.SignalMode(mode)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}

	return records, nil
}
