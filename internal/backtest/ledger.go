package backtest

import (
	"errors"
	"sync"

	"orderflow-lab/internal/domain"
)

// ErrLedgerClosed is returned when appending to a closed ledger.
var ErrLedgerClosed = errors.New("ledger is closed")

// Ledger is an append-only sequence of trades. Appended trades are never
// modified; readers receive copies.
type Ledger struct {
	mu     sync.RWMutex
	trades []domain.Trade
	closed bool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds a trade to the end of the ledger.
func (l *Ledger) Append(t domain.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLedgerClosed
	}
	l.trades = append(l.trades, t)
	return nil
}

// Close rejects further appends.
func (l *Ledger) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Len returns the number of trades.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Trades returns a snapshot copy of all trades in append order.
func (l *Ledger) Trades() []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Since returns a copy of trades appended at or after index i.
func (l *Ledger) Since(i int) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i >= len(l.trades) {
		return nil
	}
	if i < 0 {
		i = 0
	}
	out := make([]domain.Trade, len(l.trades)-i)
	copy(out, l.trades[i:])
	return out
}
