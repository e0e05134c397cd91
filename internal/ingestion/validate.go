package ingestion

import (
	"fmt"
	"math"

	"orderflow-lab/internal/domain"
)

// ValidateTick rejects ticks the core cannot process: empty symbol,
// non-finite or non-positive price, negative volume, unknown side.
// Zero-volume prints are valid and still move exits and signal release.
func ValidateTick(t *domain.Tick) error {
	if t == nil {
		return fmt.Errorf("%w: nil tick", ErrMalformedTick)
	}
	if t.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrMalformedTick)
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return fmt.Errorf("%w: invalid price %v", ErrMalformedTick, t.Price)
	}
	if t.Volume < 0 {
		return fmt.Errorf("%w: invalid volume %d", ErrMalformedTick, t.Volume)
	}
	if !t.Side.IsValid() {
		return fmt.Errorf("%w: invalid side %q", ErrMalformedTick, t.Side)
	}
	return nil
}
