package reporting

import (
	"context"
	"fmt"
	"time"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

// Generator produces reports from stored trade ledgers.
type Generator struct {
	tradeStore storage.TradeStore
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(tradeStore storage.TradeStore) *Generator {
	return &Generator{
		tradeStore: tradeStore,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads the ledger of a stored run and summarizes it.
// Returns storage.ErrNotFound if the run has no trades.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	trades, err := g.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, storage.ErrNotFound)
	}
	return g.FromTrades(runID, trades[0].Symbol, trades[0].Mode, trades), nil
}

// FromTrades builds a report from an in-memory ledger.
func (g *Generator) FromTrades(runID, symbol string, mode domain.SignalMode, trades []domain.Trade) *Report {
	return &Report{
		GeneratedAt: g.now(),
		RunID:       runID,
		Symbol:      symbol,
		Mode:        mode,
		Summary:     Summarize(trades),
		Trades:      trades,
	}
}

// Compare loads two stored runs and computes the look-ahead inflation.
func (g *Generator) Compare(ctx context.Context, causalRunID, lookaheadRunID string) (*Comparison, error) {
	causal, err := g.load(ctx, causalRunID)
	if err != nil {
		return nil, err
	}
	lookahead, err := g.load(ctx, lookaheadRunID)
	if err != nil {
		return nil, err
	}
	return g.CompareTrades(causal, lookahead), nil
}

// CompareTrades computes the look-ahead inflation of two in-memory ledgers.
func (g *Generator) CompareTrades(causal, lookahead []domain.Trade) *Comparison {
	c := Compare(causal, lookahead)
	c.GeneratedAt = g.now()
	switch {
	case len(causal) > 0:
		c.Symbol = causal[0].Symbol
	case len(lookahead) > 0:
		c.Symbol = lookahead[0].Symbol
	}
	return &c
}

func (g *Generator) load(ctx context.Context, runID string) ([]domain.Trade, error) {
	if g.tradeStore == nil {
		return nil, fmt.Errorf("load run %s: no trade store", runID)
	}
	stored, err := g.tradeStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	trades := make([]domain.Trade, 0, len(stored))
	for _, t := range stored {
		trades = append(trades, *t)
	}
	return trades, nil
}
