package domain

// AnomalyEvent is the detector's verdict for a single tick.
type AnomalyEvent struct {
	Symbol      string
	TimestampMs int64
	Seq         int64
	Price       float64 // quantized price of the tick
	Side        Side
	Volume      int64   // same-side volume at Price within the stats window
	ZScore      float64 // 0 when the distribution has zero variance
	IsAnomaly   bool
	Stat        WindowedStat
}

// SignalKind classifies an absorption signal.
type SignalKind string

const (
	SignalBidAbsorption SignalKind = "BID_ABSORPTION"
	SignalAskAbsorption SignalKind = "ASK_ABSORPTION"
)

// String returns the string representation of SignalKind.
func (k SignalKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a valid value.
func (k SignalKind) IsValid() bool {
	return k == SignalBidAbsorption || k == SignalAskAbsorption
}

// KindForSide returns the absorption kind produced by an anomaly on side.
func KindForSide(side Side) SignalKind {
	if side == SideAsk {
		return SignalAskAbsorption
	}
	return SignalBidAbsorption
}

// PositionSide returns the direction a signal of this kind opens.
// Absorbed selling (BID) is bought, absorbed buying (ASK) is sold.
func (k SignalKind) PositionSide() PositionSide {
	if k == SignalAskAbsorption {
		return PositionShort
	}
	return PositionLong
}

// AbsorptionSignal is an anomaly whose expected reactive move did not
// happen inside the forward window. It is non-causal: it depends on ticks
// after TimestampMs.
type AbsorptionSignal struct {
	Symbol       string
	TimestampMs  int64 // detection time
	Side         Side
	TriggerPrice float64
	Kind         SignalKind
	ZScore       float64
	Volume       int64
	MoveTicks    float64 // realized reactive move, in ticks

	// Same-side anomaly counts in the trailing density window.
	BidDensity int
	AskDensity int
	NetDensity int // AskDensity - BidDensity
}

// SignalMode labels how a signal stream may be used.
type SignalMode string

const (
	// ModeCausal marks signals re-stamped to their production availability time.
	ModeCausal SignalMode = "CAUSAL"
	// ModeLookahead marks raw signals replayed at detection time. Results
	// produced in this mode carry look-ahead bias and are not a valid backtest.
	ModeLookahead SignalMode = "LOOKAHEAD_BIAS"
)

// String returns the string representation of SignalMode.
func (m SignalMode) String() string {
	return string(m)
}

// IsValid checks if the mode is a valid value.
func (m SignalMode) IsValid() bool {
	return m == ModeCausal || m == ModeLookahead
}

// CausalSignal is an absorption signal stamped with the time at which it
// could actually be known, and the price of the tick observed then.
type CausalSignal struct {
	Symbol       string
	TimestampMs  int64   // availability time
	TriggerPrice float64 // price of the tick at availability time
	Kind         SignalKind
	Side         Side
	Mode         SignalMode

	DetectionTimeMs int64
	DetectionPrice  float64
	ZScore          float64
	BidDensity      int
	AskDensity      int
	NetDensity      int
}

// SignalRecord is a causal signal persisted for audit, keyed by
// (RunID, Index).
type SignalRecord struct {
	RunID string
	Index int // position in the run's signal stream
	CausalSignal
}
