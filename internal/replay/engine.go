package replay

import (
	"context"

	"orderflow-lab/internal/domain"
)

// ReplayEngine processes ticks in deterministic order.
type ReplayEngine interface {
	// OnTick is called for each tick in order.
	// Ticks are guaranteed to be ordered by (timestamp, seq).
	OnTick(ctx context.Context, tick *domain.Tick) error
}

// EngineFunc adapts a function to ReplayEngine.
type EngineFunc func(ctx context.Context, tick *domain.Tick) error

// OnTick calls f.
func (f EngineFunc) OnTick(ctx context.Context, tick *domain.Tick) error {
	return f(ctx, tick)
}

// Fanout delivers each tick to every engine in order, stopping at the
// first error.
type Fanout []ReplayEngine

// OnTick implements ReplayEngine.
func (f Fanout) OnTick(ctx context.Context, tick *domain.Tick) error {
	for _, e := range f {
		if err := e.OnTick(ctx, tick); err != nil {
			return err
		}
	}
	return nil
}
