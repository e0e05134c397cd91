package domain

// Position is an open simulated position.
type Position struct {
	Side            PositionSide
	EntryTimeMs     int64
	EntryPrice      float64
	TakeProfitPrice float64
	StopLossPrice   float64
	SignalKind      SignalKind
	SignalTimeMs    int64 // causal timestamp of the opening signal
	Seq             int   // open order within the run
}

// ExitReason is the rule that closed a position.
type ExitReason string

// Exit reason codes
const (
	ExitReasonTarget    ExitReason = "TARGET"
	ExitReasonStop      ExitReason = "STOP"
	ExitReasonEOD       ExitReason = "EOD"
	ExitReasonEndOfData ExitReason = "END_OF_DATA"
)

// String returns the string representation of ExitReason.
func (r ExitReason) String() string {
	return string(r)
}

// IsValid checks if the exit reason is a valid value.
func (r ExitReason) IsValid() bool {
	switch r {
	case ExitReasonTarget, ExitReasonStop, ExitReasonEOD, ExitReasonEndOfData:
		return true
	}
	return false
}

// Trade is a closed position. Immutable once appended to a ledger.
type Trade struct {
	TradeID string     // deterministic hash
	RunID   string     // backtest run identifier
	Symbol  string     // instrument
	Mode    SignalMode // CAUSAL | LOOKAHEAD_BIAS

	Side         PositionSide
	SignalKind   SignalKind
	SignalTimeMs int64

	// Entry
	EntryTimeMs     int64
	EntryPrice      float64
	TakeProfitPrice float64
	StopLossPrice   float64

	// Exit
	ExitTimeMs int64
	ExitPrice  float64
	ExitReason ExitReason

	// Outcome
	Contracts     int
	ProfitPoints  float64 // sign-adjusted per side
	ProfitDollars float64 // ProfitPoints * pointValue * Contracts
}
