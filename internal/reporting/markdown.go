package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: %s | Symbol: %s | Mode: %s\n\n", r.RunID, r.Symbol, r.Mode))

	writeSummary(&sb, "Summary", r.Summary)

	// Ledger
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| Entry (ms) | Side | Signal | Entry | Exit (ms) | Exit | Reason | Points | Dollars |\n")
		sb.WriteString("|------------|------|--------|-------|-----------|------|--------|--------|---------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %.4f | %d | %.4f | %s | %.4f | %.2f |\n",
				t.EntryTimeMs, t.Side, t.SignalKind, t.EntryPrice,
				t.ExitTimeMs, t.ExitPrice, t.ExitReason, t.ProfitPoints, t.ProfitDollars))
		}
	} else {
		sb.WriteString("No trades.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// RenderComparisonMarkdown renders a causal vs look-ahead comparison as Markdown string.
func RenderComparisonMarkdown(c *Comparison) string {
	var sb strings.Builder

	sb.WriteString("# Look-ahead Comparison\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", c.GeneratedAt.Format(time.RFC3339)))
	if c.Symbol != "" {
		sb.WriteString(fmt.Sprintf("Symbol: %s\n\n", c.Symbol))
	}

	sb.WriteString("| Metric | CAUSAL | LOOKAHEAD_BIAS |\n")
	sb.WriteString("|--------|--------|----------------|\n")
	sb.WriteString(fmt.Sprintf("| Trades | %d | %d |\n", c.Causal.TotalTrades, c.Lookahead.TotalTrades))
	for i, cc := range c.Causal.ExitReasons {
		lc := 0
		if i < len(c.Lookahead.ExitReasons) {
			lc = c.Lookahead.ExitReasons[i].Count
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %d |\n", cc.Reason, cc.Count, lc))
	}
	sb.WriteString(fmt.Sprintf("| Points | %.4f | %.4f |\n", c.Causal.TotalPoints, c.Lookahead.TotalPoints))
	sb.WriteString(fmt.Sprintf("| Dollars | %.2f | %.2f |\n", c.Causal.TotalDollars, c.Lookahead.TotalDollars))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("**Look-ahead inflation:** %.4f points, %.2f dollars\n\n",
		c.InflationPoints, c.InflationDollars))

	return sb.String()
}

func writeSummary(sb *strings.Builder, title string, s Summary) {
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", s.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Long | %d |\n", s.LongTrades))
	sb.WriteString(fmt.Sprintf("| Short | %d |\n", s.ShortTrades))
	for _, c := range s.ExitReasons {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", c.Reason, c.Count))
	}
	sb.WriteString(fmt.Sprintf("| Total Points | %.4f |\n", s.TotalPoints))
	sb.WriteString(fmt.Sprintf("| Total Dollars | %.2f |\n", s.TotalDollars))
	sb.WriteString("\n")
}
