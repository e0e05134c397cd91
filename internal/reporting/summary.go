package reporting

import "orderflow-lab/internal/domain"

var exitReasonOrder = []domain.ExitReason{
	domain.ExitReasonTarget,
	domain.ExitReasonStop,
	domain.ExitReasonEOD,
	domain.ExitReasonEndOfData,
}

// Summarize counts trades per side and per exit reason and totals P&L.
func Summarize(trades []domain.Trade) Summary {
	counts := make(map[domain.ExitReason]int, len(exitReasonOrder))
	var s Summary
	for _, t := range trades {
		s.TotalTrades++
		switch t.Side {
		case domain.PositionLong:
			s.LongTrades++
		case domain.PositionShort:
			s.ShortTrades++
		}
		counts[t.ExitReason]++
		s.TotalPoints += t.ProfitPoints
		s.TotalDollars += t.ProfitDollars
	}

	s.ExitReasons = make([]ExitReasonCount, 0, len(exitReasonOrder))
	for _, r := range exitReasonOrder {
		s.ExitReasons = append(s.ExitReasons, ExitReasonCount{Reason: r, Count: counts[r]})
	}
	return s
}

// Compare summarizes both ledgers and computes the look-ahead inflation.
func Compare(causal, lookahead []domain.Trade) Comparison {
	c := Comparison{
		Causal:    Summarize(causal),
		Lookahead: Summarize(lookahead),
	}
	c.InflationPoints = c.Lookahead.TotalPoints - c.Causal.TotalPoints
	c.InflationDollars = c.Lookahead.TotalDollars - c.Causal.TotalDollars
	return c
}
