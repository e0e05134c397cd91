package reporting

import (
	"fmt"
	"strings"

	"orderflow-lab/internal/domain"
)

// RenderTradesCSV renders a trade ledger as CSV string.
func RenderTradesCSV(trades []domain.Trade) string {
	var sb strings.Builder

	// Header
	sb.WriteString("trade_id,run_id,symbol,mode,side,signal_kind,signal_time_ms,")
	sb.WriteString("entry_time_ms,entry_price,take_profit_price,stop_loss_price,")
	sb.WriteString("exit_time_ms,exit_price,exit_reason,contracts,profit_points,profit_dollars\n")

	// Rows
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%d,%d,%.6f,%.6f,%.6f,%d,%.6f,%s,%d,%.6f,%.2f\n",
			t.TradeID,
			t.RunID,
			t.Symbol,
			t.Mode,
			t.Side,
			t.SignalKind,
			t.SignalTimeMs,
			t.EntryTimeMs,
			t.EntryPrice,
			t.TakeProfitPrice,
			t.StopLossPrice,
			t.ExitTimeMs,
			t.ExitPrice,
			t.ExitReason,
			t.Contracts,
			t.ProfitPoints,
			t.ProfitDollars,
		))
	}

	return sb.String()
}

// RenderExitReasonsCSV renders exit-reason counts of a summary as CSV string.
func RenderExitReasonsCSV(s Summary) string {
	var sb strings.Builder
	sb.WriteString("exit_reason,count\n")
	for _, c := range s.ExitReasons {
		sb.WriteString(fmt.Sprintf("%s,%d\n", c.Reason, c.Count))
	}
	return sb.String()
}
