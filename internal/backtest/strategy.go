package backtest

import (
	"errors"
	"fmt"
	"time"

	"orderflow-lab/internal/domain"
)

// FilterMode selects the entry predicate applied to causal signals.
type FilterMode string

// Filter modes.
const (
	// FilterVolumeOnly admits every signal.
	FilterVolumeOnly FilterMode = "VOLUME_ONLY"
	// FilterDensity requires same-side anomaly density above a threshold.
	FilterDensity FilterMode = "DENSITY"
	// FilterNetDensity requires net density (ask - bid) beyond a threshold
	// in the direction of the trade.
	FilterNetDensity FilterMode = "NET_DENSITY"
)

// String returns the string representation of FilterMode.
func (m FilterMode) String() string {
	return string(m)
}

// IsValid checks if the filter mode is a valid value.
func (m FilterMode) IsValid() bool {
	switch m {
	case FilterVolumeOnly, FilterDensity, FilterNetDensity:
		return true
	}
	return false
}

// Strategy config errors
var (
	ErrInvalidTakeProfit    = errors.New("take profit points must be non-negative")
	ErrInvalidStopLoss      = errors.New("stop loss points must be non-negative")
	ErrInvalidPointValue    = errors.New("point value must be positive")
	ErrInvalidContracts     = errors.New("contracts must be at least 1")
	ErrInvalidMaxOpen       = errors.New("max open positions must be at least 1")
	ErrUnknownFilterMode    = errors.New("unknown filter mode")
	ErrInvalidDensityThresh = errors.New("density thresholds must be non-negative")
)

// StrategyConfig parameterizes the engine. One engine covers every
// filter mode and exit offset combination.
type StrategyConfig struct {
	TakeProfitPoints float64
	StopLossPoints   float64
	PointValue       float64
	Contracts        int
	MaxOpenPositions int

	// EODCutoff force-closes positions and blocks entries from this time
	// of day on. Nil disables the rule.
	EODCutoff *domain.TimeOfDay
	Location  *time.Location // zone for EODCutoff; nil means UTC

	FilterMode          FilterMode
	DensityThreshold    int // DENSITY: same-side density must exceed this
	NetDensityThreshold int // NET_DENSITY: |net density| must exceed this
}

// Validate checks required parameters and returns the first violation.
func (c StrategyConfig) Validate() error {
	if c.TakeProfitPoints < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTakeProfit, c.TakeProfitPoints)
	}
	if c.StopLossPoints < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidStopLoss, c.StopLossPoints)
	}
	if c.PointValue <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPointValue, c.PointValue)
	}
	if c.Contracts < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidContracts, c.Contracts)
	}
	if c.MaxOpenPositions < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxOpen, c.MaxOpenPositions)
	}
	if !c.FilterMode.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownFilterMode, c.FilterMode)
	}
	if c.DensityThreshold < 0 || c.NetDensityThreshold < 0 {
		return ErrInvalidDensityThresh
	}
	return nil
}

// Admits reports whether the filter mode lets sig open a position.
func (c StrategyConfig) Admits(sig domain.CausalSignal) bool {
	side := sig.Kind.PositionSide()
	switch c.FilterMode {
	case FilterDensity:
		if side == domain.PositionLong {
			return sig.BidDensity > c.DensityThreshold
		}
		return sig.AskDensity > c.DensityThreshold
	case FilterNetDensity:
		if side == domain.PositionLong {
			return sig.NetDensity < -c.NetDensityThreshold
		}
		return sig.NetDensity > c.NetDensityThreshold
	default:
		return true
	}
}

// eodReached reports whether the EOD rule applies at timestampMs.
func (c StrategyConfig) eodReached(timestampMs int64) bool {
	return c.EODCutoff != nil && c.EODCutoff.ReachedAt(timestampMs, c.Location)
}
