// Package shift converts non-causal absorption signals into signals that
// are stamped with the time they could actually be known.
package shift

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/lookup"
)

// Result holds the output of a batch shift.
type Result struct {
	Signals []domain.CausalSignal
	Dropped []domain.AbsorptionSignal // no tick at or after the shift target
}

// Shifter delays each signal to the earliest tick at or after
// detection time + Delay.
type Shifter struct {
	delayMs int64
	logger  *zap.Logger
}

// NewShifter creates a Shifter. Delay must equal the classifier's lookahead.
func NewShifter(delay time.Duration, logger *zap.Logger) (*Shifter, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("shift delay must be positive, got %v", delay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shifter{delayMs: delay.Milliseconds(), logger: logger}, nil
}

// Shift re-stamps signals against a time-ordered tick stream. The search
// only moves forward, so causal timestamps are monotonic in detection time.
func (s *Shifter) Shift(signals []domain.AbsorptionSignal, ticks []*domain.Tick) Result {
	ordered := make([]domain.AbsorptionSignal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TimestampMs < ordered[j].TimestampMs
	})

	res := Result{Signals: make([]domain.CausalSignal, 0, len(ordered))}
	pos := 0
	for _, sig := range ordered {
		target := sig.TimestampMs + s.delayMs
		idx, err := lookup.FirstAtOrAfter(target, ticks, pos)
		if err != nil {
			s.logger.Info("dropping incomplete signal",
				zap.String("kind", sig.Kind.String()),
				zap.Int64("detection_ms", sig.TimestampMs),
				zap.Int64("target_ms", target),
			)
			res.Dropped = append(res.Dropped, sig)
			continue
		}
		pos = idx
		res.Signals = append(res.Signals, Causal(sig, ticks[idx]))
	}
	return res
}

// Causal stamps sig with the availability tick at.
func Causal(sig domain.AbsorptionSignal, at *domain.Tick) domain.CausalSignal {
	return domain.CausalSignal{
		Symbol:          sig.Symbol,
		TimestampMs:     at.TimestampMs,
		TriggerPrice:    at.Price,
		Kind:            sig.Kind,
		Side:            sig.Side,
		Mode:            domain.ModeCausal,
		DetectionTimeMs: sig.TimestampMs,
		DetectionPrice:  sig.TriggerPrice,
		ZScore:          sig.ZScore,
		BidDensity:      sig.BidDensity,
		AskDensity:      sig.AskDensity,
		NetDensity:      sig.NetDensity,
	}
}

// Unshifted replays signals at their detection time and price. Output is
// labeled ModeLookahead; it exists only to measure look-ahead inflation.
func Unshifted(signals []domain.AbsorptionSignal) []domain.CausalSignal {
	out := make([]domain.CausalSignal, 0, len(signals))
	for _, sig := range signals {
		out = append(out, domain.CausalSignal{
			Symbol:          sig.Symbol,
			TimestampMs:     sig.TimestampMs,
			TriggerPrice:    sig.TriggerPrice,
			Kind:            sig.Kind,
			Side:            sig.Side,
			Mode:            domain.ModeLookahead,
			DetectionTimeMs: sig.TimestampMs,
			DetectionPrice:  sig.TriggerPrice,
			ZScore:          sig.ZScore,
			BidDensity:      sig.BidDensity,
			AskDensity:      sig.AskDensity,
			NetDensity:      sig.NetDensity,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampMs < out[j].TimestampMs
	})
	return out
}
