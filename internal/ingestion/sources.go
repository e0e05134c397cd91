package ingestion

import (
	"context"

	"orderflow-lab/internal/domain"
)

// TickSource provides bounded tick batches from external sources.
type TickSource interface {
	// Fetch returns ticks for a symbol within time range [from, to] (inclusive).
	// Ticks may be unordered; Manager enforces deterministic ordering.
	Fetch(ctx context.Context, symbol string, from, to int64) ([]*domain.Tick, error)
}

// TickStream provides an unbounded, already ordered tick stream.
type TickStream interface {
	// Subscribe returns a channel of ticks. The channel is closed when the
	// context is cancelled or the stream ends.
	Subscribe(ctx context.Context) (<-chan *domain.Tick, error)
}
