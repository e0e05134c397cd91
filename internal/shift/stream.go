package shift

import (
	"fmt"
	"time"

	"orderflow-lab/internal/domain"
)

// Stream is the incremental form of Shifter for live feeds. Pushed
// signals are released on the first subsequent tick at or after their
// shift target.
type Stream struct {
	delayMs int64
	pending []domain.AbsorptionSignal
}

// NewStream creates a Stream.
func NewStream(delay time.Duration) (*Stream, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("shift delay must be positive, got %v", delay)
	}
	return &Stream{delayMs: delay.Milliseconds()}, nil
}

// Push queues a signal. Signals must be pushed in detection order.
func (s *Stream) Push(sig domain.AbsorptionSignal) {
	s.pending = append(s.pending, sig)
}

// Observe releases every queued signal whose target is at or before t.
func (s *Stream) Observe(t *domain.Tick) []domain.CausalSignal {
	n := 0
	for n < len(s.pending) && s.pending[n].TimestampMs+s.delayMs <= t.TimestampMs {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]domain.CausalSignal, n)
	for i := 0; i < n; i++ {
		out[i] = Causal(s.pending[i], t)
	}
	s.pending = append(s.pending[:0], s.pending[n:]...)
	return out
}

// Pending returns signals still waiting for their target. At end of data
// these are the incomplete signals.
func (s *Stream) Pending() []domain.AbsorptionSignal {
	out := make([]domain.AbsorptionSignal, len(s.pending))
	copy(out, s.pending)
	return out
}
