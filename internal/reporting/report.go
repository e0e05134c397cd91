package reporting

import (
	"time"

	"orderflow-lab/internal/domain"
)

// Report summarizes one backtest run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	Symbol      string
	Mode        domain.SignalMode

	Summary Summary

	// Ledger in (entry_time_ms, trade_id) order
	Trades []domain.Trade
}

// Summary holds the only aggregates computed over a ledger: trade counts,
// exit-reason counts and total P&L. Ratios are left to downstream tooling.
type Summary struct {
	TotalTrades  int
	LongTrades   int
	ShortTrades  int
	ExitReasons  []ExitReasonCount // fixed order: TARGET, STOP, EOD, END_OF_DATA
	TotalPoints  float64
	TotalDollars float64
}

// ExitReasonCount is the number of trades closed by one exit rule.
type ExitReasonCount struct {
	Reason domain.ExitReason
	Count  int
}

// Count returns the number of trades closed with reason.
func (s Summary) Count(reason domain.ExitReason) int {
	for _, c := range s.ExitReasons {
		if c.Reason == reason {
			return c.Count
		}
	}
	return 0
}

// Comparison sets a causal run against its look-ahead biased twin.
type Comparison struct {
	GeneratedAt time.Time
	Symbol      string

	Causal    Summary
	Lookahead Summary

	// Lookahead minus causal. Positive means the biased run overstates P&L.
	InflationPoints  float64
	InflationDollars float64
}
