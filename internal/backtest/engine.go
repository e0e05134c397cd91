package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/idhash"
	"orderflow-lab/internal/replay"
)

// ErrEngineFinished is returned when ticks arrive after Finish.
var ErrEngineFinished = errors.New("engine already finished")

// Stats counts what the engine did with its inputs.
type Stats struct {
	Ticks            int
	SignalsReceived  int
	SignalsActivated int
	RejectedFilter   int
	RejectedCapacity int
	RejectedEOD      int
	MaxOpen          int
}

// Results holds backtest output.
type Results struct {
	RunID  string
	Symbol string
	Mode   domain.SignalMode
	Stats  Stats
	Trades []domain.Trade
}

// EngineOptions identifies a run.
type EngineOptions struct {
	RunID  string
	Symbol string
	Mode   domain.SignalMode // CAUSAL unless measuring look-ahead bias
	Logger *zap.Logger
}

// Engine is the position state machine. Each tick first evaluates exits
// for every open position (EOD, then TARGET, then STOP; first match wins),
// then opens positions for queued signals whose timestamp has been reached.
// Implements replay.ReplayEngine. Not safe for concurrent use.
type Engine struct {
	cfg    StrategyConfig
	opts   EngineOptions
	logger *zap.Logger

	queue []domain.CausalSignal // ordered by TimestampMs
	next  int

	open   []*domain.Position
	ledger *Ledger
	opened int
	stats  Stats
	last   *domain.Tick
	done   bool
}

// NewEngine creates a new backtest engine.
func NewEngine(cfg StrategyConfig, opts EngineOptions) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Mode == "" {
		opts.Mode = domain.ModeCausal
	}
	if !opts.Mode.IsValid() {
		return nil, fmt.Errorf("invalid signal mode %q", opts.Mode)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(zap.String("run_id", opts.RunID), zap.String("mode", opts.Mode.String())),
		ledger: NewLedger(),
	}, nil
}

// Submit queues signals for activation. Signals become eligible on the
// first tick at or after their timestamp, never earlier.
func (e *Engine) Submit(signals ...domain.CausalSignal) error {
	for _, sig := range signals {
		if sig.Mode != e.opts.Mode {
			return fmt.Errorf("signal mode %s does not match engine mode %s", sig.Mode, e.opts.Mode)
		}
		if !sig.Kind.IsValid() {
			return fmt.Errorf("invalid signal kind %q", sig.Kind)
		}
		e.stats.SignalsReceived++

		// Insert after every queued signal with an equal or earlier timestamp.
		pending := e.queue[e.next:]
		i := sort.Search(len(pending), func(i int) bool {
			return pending[i].TimestampMs > sig.TimestampMs
		})
		pos := e.next + i
		e.queue = append(e.queue, domain.CausalSignal{})
		copy(e.queue[pos+1:], e.queue[pos:])
		e.queue[pos] = sig
	}
	return nil
}

// OnTick advances the state machine by one tick.
// Implements replay.ReplayEngine.
func (e *Engine) OnTick(_ context.Context, tick *domain.Tick) error {
	if e.done {
		return ErrEngineFinished
	}
	if e.last != nil && tick.TimestampMs < e.last.TimestampMs {
		return fmt.Errorf("%w: tick at %d after %d", replay.ErrInvalidOrdering, tick.TimestampMs, e.last.TimestampMs)
	}
	e.stats.Ticks++
	tickCopy := *tick
	e.last = &tickCopy

	eod := e.cfg.eodReached(tick.TimestampMs)
	if err := e.evaluateExits(tick, eod); err != nil {
		return err
	}
	return e.activateSignals(tick, eod)
}

func (e *Engine) evaluateExits(tick *domain.Tick, eod bool) error {
	kept := e.open[:0]
	for _, pos := range e.open {
		reason, price, hit := e.exitFor(pos, tick.Price, eod)
		if !hit {
			kept = append(kept, pos)
			continue
		}
		if err := e.close(pos, tick.TimestampMs, price, reason); err != nil {
			return err
		}
	}
	for i := len(kept); i < len(e.open); i++ {
		e.open[i] = nil
	}
	e.open = kept
	return nil
}

// exitFor applies the fixed priority EOD > TARGET > STOP. TARGET and STOP
// fill at their exact level; EOD fills at the tick price.
func (e *Engine) exitFor(pos *domain.Position, price float64, eod bool) (domain.ExitReason, float64, bool) {
	if eod {
		return domain.ExitReasonEOD, price, true
	}
	if pos.Side == domain.PositionLong {
		if price >= pos.TakeProfitPrice {
			return domain.ExitReasonTarget, pos.TakeProfitPrice, true
		}
		if price <= pos.StopLossPrice {
			return domain.ExitReasonStop, pos.StopLossPrice, true
		}
		return "", 0, false
	}
	if price <= pos.TakeProfitPrice {
		return domain.ExitReasonTarget, pos.TakeProfitPrice, true
	}
	if price >= pos.StopLossPrice {
		return domain.ExitReasonStop, pos.StopLossPrice, true
	}
	return "", 0, false
}

func (e *Engine) activateSignals(tick *domain.Tick, eod bool) error {
	for e.next < len(e.queue) && e.queue[e.next].TimestampMs <= tick.TimestampMs {
		sig := e.queue[e.next]
		e.queue[e.next] = domain.CausalSignal{}
		e.next++

		switch {
		case !e.cfg.Admits(sig):
			e.stats.RejectedFilter++
		case eod:
			e.stats.RejectedEOD++
		case len(e.open) >= e.cfg.MaxOpenPositions:
			e.stats.RejectedCapacity++
		default:
			e.openPosition(sig, tick)
		}
	}

	if e.next == len(e.queue) {
		e.queue = e.queue[:0]
		e.next = 0
	}
	return nil
}

func (e *Engine) openPosition(sig domain.CausalSignal, tick *domain.Tick) {
	side := sig.Kind.PositionSide()
	dir := side.Direction()
	entry := sig.TriggerPrice

	pos := &domain.Position{
		Side:            side,
		EntryTimeMs:     tick.TimestampMs,
		EntryPrice:      entry,
		TakeProfitPrice: entry + dir*e.cfg.TakeProfitPoints,
		StopLossPrice:   entry - dir*e.cfg.StopLossPoints,
		SignalKind:      sig.Kind,
		SignalTimeMs:    sig.TimestampMs,
		Seq:             e.opened,
	}
	e.opened++
	e.open = append(e.open, pos)
	e.stats.SignalsActivated++
	if len(e.open) > e.stats.MaxOpen {
		e.stats.MaxOpen = len(e.open)
	}

	e.logger.Debug("position opened",
		zap.String("side", side.String()),
		zap.Float64("entry_price", entry),
		zap.Int64("entry_time_ms", tick.TimestampMs),
		zap.Int64("detection_time_ms", sig.DetectionTimeMs),
	)
}

func (e *Engine) close(pos *domain.Position, exitTimeMs int64, exitPrice float64, reason domain.ExitReason) error {
	points := (exitPrice - pos.EntryPrice) * pos.Side.Direction()
	trade := domain.Trade{
		TradeID:         idhash.ComputeTradeID(e.opts.RunID, e.opts.Symbol, e.opts.Mode.String(), pos.EntryTimeMs, pos.Seq),
		RunID:           e.opts.RunID,
		Symbol:          e.opts.Symbol,
		Mode:            e.opts.Mode,
		Side:            pos.Side,
		SignalKind:      pos.SignalKind,
		SignalTimeMs:    pos.SignalTimeMs,
		EntryTimeMs:     pos.EntryTimeMs,
		EntryPrice:      pos.EntryPrice,
		TakeProfitPrice: pos.TakeProfitPrice,
		StopLossPrice:   pos.StopLossPrice,
		ExitTimeMs:      exitTimeMs,
		ExitPrice:       exitPrice,
		ExitReason:      reason,
		Contracts:       e.cfg.Contracts,
		ProfitPoints:    points,
		ProfitDollars:   points * e.cfg.PointValue * float64(e.cfg.Contracts),
	}
	if err := e.ledger.Append(trade); err != nil {
		return err
	}

	e.logger.Debug("position closed",
		zap.String("exit_reason", reason.String()),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("profit_points", points),
	)
	return nil
}

// CloseAll force-closes every open position at the last observed price.
// Live shutdown uses ExitReasonEOD; end of a replay uses ExitReasonEndOfData.
func (e *Engine) CloseAll(reason domain.ExitReason) error {
	if len(e.open) == 0 {
		return nil
	}
	if e.last == nil {
		return fmt.Errorf("cannot close %d positions without a price", len(e.open))
	}
	for _, pos := range e.open {
		if err := e.close(pos, e.last.TimestampMs, e.last.Price, reason); err != nil {
			return err
		}
	}
	e.open = e.open[:0]
	return nil
}

// Finish closes remaining positions with END_OF_DATA, seals the ledger
// and returns the results. Calling Finish twice returns the same results.
func (e *Engine) Finish() (*Results, error) {
	if !e.done {
		if err := e.CloseAll(domain.ExitReasonEndOfData); err != nil {
			return nil, err
		}
		e.ledger.Close()
		e.done = true
	}
	return e.Results(), nil
}

// Results returns a snapshot of the engine output so far.
func (e *Engine) Results() *Results {
	return &Results{
		RunID:  e.opts.RunID,
		Symbol: e.opts.Symbol,
		Mode:   e.opts.Mode,
		Stats:  e.stats,
		Trades: e.ledger.Trades(),
	}
}

// OpenPositions returns copies of the open positions.
func (e *Engine) OpenPositions() []domain.Position {
	out := make([]domain.Position, len(e.open))
	for i, pos := range e.open {
		out[i] = *pos
	}
	return out
}

// Ledger returns the engine's trade ledger.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Ensure Engine implements replay.ReplayEngine
var _ replay.ReplayEngine = (*Engine)(nil)
