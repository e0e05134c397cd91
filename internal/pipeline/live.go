package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"orderflow-lab/internal/backtest"
	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/observability"
	"orderflow-lab/internal/shift"
)

// ErrStopped is returned when ticks are submitted to a stopped pipeline.
var ErrStopped = errors.New("live pipeline stopped")

// DefaultQueueSize bounds the live input queue.
const DefaultQueueSize = 4096

// LiveOptions identifies a live session.
type LiveOptions struct {
	RunID     string
	Symbol    string
	QueueSize int
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// Snapshot is a copy of live state; it never aliases pipeline internals.
type Snapshot struct {
	Ticks           int
	LastTimestampMs int64
	Profile         domain.Profile
	OpenPositions   []domain.Position
	Trades          []domain.Trade
}

// Live runs the pipeline for one instrument on a single goroutine that
// owns every mutable component. Producers hand ticks over through a
// bounded queue; readers only ever see Snapshot copies.
type Live struct {
	opts    LiveOptions
	logger  *zap.Logger
	metrics *observability.Metrics

	stages *stages
	stream *shift.Stream
	engine *backtest.Engine

	// mu serializes the update path against Snapshot readers.
	mu     sync.RWMutex
	ticks  int
	lastTs int64
	seen   int // ledger entries already reported

	in      chan *domain.Tick
	sendMu  sync.RWMutex
	stopped bool
	started bool

	done   chan struct{}
	err    error
	result *backtest.Results
}

// NewLive creates a live pipeline. Call Start before submitting ticks.
func NewLive(cfg Config, opts LiveOptions) (*Live, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := newStages(cfg, logger)
	if err != nil {
		return nil, err
	}
	stream, err := shift.NewStream(cfg.Absorption.Lookahead)
	if err != nil {
		return nil, err
	}
	engine, err := backtest.NewEngine(cfg.Strategy, backtest.EngineOptions{
		RunID:  opts.RunID,
		Symbol: opts.Symbol,
		Mode:   domain.ModeCausal,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &Live{
		opts:    opts,
		logger:  logger.With(zap.String("symbol", opts.Symbol)),
		metrics: opts.Metrics,
		stages:  st,
		stream:  stream,
		engine:  engine,
		in:      make(chan *domain.Tick, opts.QueueSize),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the owning goroutine.
func (l *Live) Start() {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if l.started {
		return
	}
	l.started = true
	go l.run()
}

// Submit enqueues a tick, blocking while the queue is full. Once the owning
// goroutine has halted it returns the halting error (or ErrStopped).
func (l *Live) Submit(ctx context.Context, t *domain.Tick) error {
	l.sendMu.RLock()
	defer l.sendMu.RUnlock()
	if l.stopped {
		return ErrStopped
	}

	select {
	case <-l.done:
		return l.haltErr()
	default:
	}

	select {
	case l.in <- t:
		l.metrics.SetQueueDepth(len(l.in))
		return nil
	case <-l.done:
		return l.haltErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// haltErr must only be called after done is closed.
func (l *Live) haltErr() error {
	if l.err != nil {
		return l.err
	}
	return ErrStopped
}

// Consume submits every tick from ch until ch closes or ctx is done.
func (l *Live) Consume(ctx context.Context, ch <-chan *domain.Tick) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ch:
			if !ok {
				return nil
			}
			if t.Symbol != l.opts.Symbol {
				l.metrics.RecordRejectedTick(t.Symbol, "symbol")
				continue
			}
			if err := l.Submit(ctx, t); err != nil {
				return err
			}
		}
	}
}

// Stop closes the input, processes ticks already queued and force-closes
// open positions with EOD. It returns the session results.
func (l *Live) Stop(ctx context.Context) (*backtest.Results, error) {
	l.sendMu.Lock()
	if !l.stopped {
		l.stopped = true
		close(l.in)
	}
	l.sendMu.Unlock()

	// A pipeline stopped before Start still finalizes its engine.
	l.Start()

	select {
	case <-l.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.err != nil {
		return l.result, l.err
	}
	return l.result, nil
}

// Done is closed when the owning goroutine exits.
func (l *Live) Done() <-chan struct{} {
	return l.done
}

// Snapshot returns a copy of the current profile, positions and ledger.
func (l *Live) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Ticks:           l.ticks,
		LastTimestampMs: l.lastTs,
		Profile:         l.stages.profile.Profile(),
		OpenPositions:   l.engine.OpenPositions(),
		Trades:          l.engine.Ledger().Trades(),
	}
}

func (l *Live) run() {
	defer close(l.done)

	for t := range l.in {
		if err := l.process(t); err != nil {
			l.err = err
			l.logger.Error("live pipeline halted", zap.Error(err))
			l.finish()
			return
		}
	}
	l.finish()
}

func (l *Live) process(t *domain.Tick) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	outcomes, anomaly, err := l.stages.step(t)
	if err != nil {
		return err
	}
	l.ticks++
	l.lastTs = t.TimestampMs
	l.metrics.RecordTick(t.Symbol)
	if anomaly != nil {
		l.metrics.RecordAnomaly(anomaly.Side.String())
	}

	for _, o := range outcomes {
		l.metrics.RecordCandidate(outcomeLabel(o))
		if o.Absorbed {
			l.stream.Push(o.Signal)
		}
	}

	released := l.stream.Observe(t)
	if len(released) > 0 {
		l.metrics.RecordShift(len(released), 0)
		if err := l.engine.Submit(released...); err != nil {
			return err
		}
	}
	if err := l.engine.OnTick(context.Background(), t); err != nil {
		return err
	}
	l.reportTrades()
	return nil
}

// finish force-closes open positions through the EOD path.
func (l *Live) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.engine.CloseAll(domain.ExitReasonEOD); err != nil && l.err == nil {
		l.err = err
	}
	res, err := l.engine.Finish()
	if err != nil && l.err == nil {
		l.err = err
	}
	l.result = res
	l.reportTrades()

	pending := l.stages.classifier.Pending() + len(l.stream.Pending())
	if pending > 0 {
		l.metrics.RecordShift(0, pending)
		l.logger.Info("discarding incomplete signals at shutdown", zap.Int("pending", pending))
	}
	l.logger.Info("live pipeline stopped", zap.Int("ticks", l.ticks), zap.Int("trades", l.engine.Ledger().Len()))
}

func (l *Live) reportTrades() {
	for _, tr := range l.engine.Ledger().Since(l.seen) {
		l.metrics.RecordTrade(tr.ExitReason.String(), tr.ProfitDollars)
		l.seen++
	}
	l.metrics.SetOpenPositions(len(l.engine.OpenPositions()))
}
