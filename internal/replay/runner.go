package replay

import (
	"context"
	"fmt"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

// Runner loads stored ticks in deterministic replay order.
type Runner struct {
	tickStore storage.TickStore
}

// NewRunner creates a new replay runner.
func NewRunner(tickStore storage.TickStore) *Runner {
	return &Runner{tickStore: tickStore}
}

// Load returns the ticks of symbol within [from, to], ordered by (timestamp, seq).
func (r *Runner) Load(ctx context.Context, symbol string, from, to int64) ([]*domain.Tick, error) {
	ticks, err := r.tickStore.GetByTimeRange(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("load ticks: %w", err)
	}
	SortTicks(ticks)
	if err := ValidateOrdering(ticks); err != nil {
		return nil, err
	}
	return ticks, nil
}

// LoadAll returns every stored tick of symbol, ordered by (timestamp, seq).
func (r *Runner) LoadAll(ctx context.Context, symbol string) ([]*domain.Tick, error) {
	ticks, err := r.tickStore.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("load ticks: %w", err)
	}
	SortTicks(ticks)
	if err := ValidateOrdering(ticks); err != nil {
		return nil, err
	}
	return ticks, nil
}

// Replay feeds already ordered ticks through the engine. It checks ctx
// between ticks and rejects any decrease in (timestamp, seq).
func Replay(ctx context.Context, ticks []*domain.Tick, engine ReplayEngine) error {
	for i, tick := range ticks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && compareTicks(ticks[i-1], tick) > 0 {
			return fmt.Errorf("%w: tick %d at %d", ErrInvalidOrdering, i, tick.TimestampMs)
		}
		if err := engine.OnTick(ctx, tick); err != nil {
			return err
		}
	}
	return nil
}
