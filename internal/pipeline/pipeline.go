// Package pipeline wires the rolling profile, anomaly detector, absorption
// classifier, signal shifter and backtest engine over one tick stream.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderflow-lab/internal/absorption"
	"orderflow-lab/internal/backtest"
	"orderflow-lab/internal/detector"
	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/observability"
	"orderflow-lab/internal/profile"
	"orderflow-lab/internal/replay"
	"orderflow-lab/internal/shift"
)

// Config holds one value per component. The absorption lookahead is also
// the shift delay, so the two can never disagree.
type Config struct {
	Profile       profile.Config
	Detector      detector.Config
	DensityWindow time.Duration
	Absorption    absorption.Config
	Strategy      backtest.StrategyConfig
}

// Validate checks every component config.
func (c Config) Validate() error {
	if c.Profile.Window <= 0 {
		return fmt.Errorf("profile window must be positive, got %v", c.Profile.Window)
	}
	if c.Profile.TickSize <= 0 {
		return fmt.Errorf("tick size must be positive, got %v", c.Profile.TickSize)
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if c.DensityWindow < 0 {
		return fmt.Errorf("density window must not be negative, got %v", c.DensityWindow)
	}
	if err := c.Absorption.Validate(); err != nil {
		return fmt.Errorf("absorption: %w", err)
	}
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	return nil
}

// Detection is the mode-independent output of the detection pass.
type Detection struct {
	Ticks     int
	Anomalies int
	Outcomes  []absorption.Outcome
	Signals   []domain.AbsorptionSignal
	Profile   domain.Profile // snapshot after the last tick
}

// Result holds the output of one pipeline run.
type Result struct {
	RunID     string
	Symbol    string
	Mode      domain.SignalMode
	Detection *Detection
	Causal    []domain.CausalSignal
	Dropped   []domain.AbsorptionSignal // incomplete at end of data
	Backtest  *backtest.Results
}

// Comparison holds a causal run and a look-ahead run over the same ticks.
type Comparison struct {
	Causal    *Result
	Lookahead *Result
}

// Pipeline runs the batch form over a bounded, ordered tick slice.
type Pipeline struct {
	cfg     Config
	logger  *zap.Logger
	metrics *observability.Metrics
}

// New creates a batch pipeline.
func New(cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, logger: logger}, nil
}

// WithMetrics records pipeline counters on m.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Detect runs profile, detector and classifier over ticks. Ticks must be
// strictly ordered by (timestamp, seq).
func (p *Pipeline) Detect(ctx context.Context, ticks []*domain.Tick) (*Detection, error) {
	if err := replay.ValidateOrdering(ticks); err != nil {
		return nil, err
	}

	stages, err := newStages(p.cfg, p.logger)
	if err != nil {
		return nil, err
	}

	det := &Detection{}
	engine := replay.EngineFunc(func(_ context.Context, t *domain.Tick) error {
		outcomes, anomaly, err := stages.step(t)
		if err != nil {
			return err
		}
		det.Ticks++
		p.metrics.RecordTick(t.Symbol)
		if anomaly != nil {
			det.Anomalies++
			p.metrics.RecordAnomaly(anomaly.Side.String())
		}
		det.Outcomes = append(det.Outcomes, p.recordOutcomes(outcomes)...)
		return nil
	})
	if err := replay.Replay(ctx, ticks, engine); err != nil {
		return nil, err
	}

	det.Outcomes = append(det.Outcomes, p.recordOutcomes(stages.classifier.Flush())...)
	det.Signals = absorption.Signals(det.Outcomes)
	det.Profile = stages.profile.Profile()

	p.logger.Info("detection complete",
		zap.Int("ticks", det.Ticks),
		zap.Int("anomalies", det.Anomalies),
		zap.Int("candidates", len(det.Outcomes)),
		zap.Int("signals", len(det.Signals)),
	)
	return det, nil
}

// Backtest turns detected signals into causal signals for mode and replays
// them through a fresh engine. LOOKAHEAD_BIAS skips the shifter and exists
// only to measure the inflation it causes.
func (p *Pipeline) Backtest(ctx context.Context, det *Detection, ticks []*domain.Tick, runID, symbol string, mode domain.SignalMode) (*Result, error) {
	results, err := p.backtest(ctx, det, ticks, symbol, leg{runID: runID, mode: mode})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// leg is one engine of a backtest replay.
type leg struct {
	runID string
	mode  domain.SignalMode
}

// backtest replays ticks once, fanning each tick out to one engine per leg.
// Engines share nothing, so every leg's ledger matches a solo run.
func (p *Pipeline) backtest(ctx context.Context, det *Detection, ticks []*domain.Tick, symbol string, legs ...leg) ([]*Result, error) {
	start := time.Now()
	results := make([]*Result, len(legs))
	engines := make([]*backtest.Engine, len(legs))
	fanout := make(replay.Fanout, len(legs))

	for i, l := range legs {
		res := &Result{RunID: l.runID, Symbol: symbol, Mode: l.mode, Detection: det}
		switch l.mode {
		case domain.ModeCausal:
			shifter, err := shift.NewShifter(p.cfg.Absorption.Lookahead, p.logger)
			if err != nil {
				return nil, err
			}
			shifted := shifter.Shift(det.Signals, ticks)
			res.Causal = shifted.Signals
			res.Dropped = shifted.Dropped
			p.metrics.RecordShift(len(shifted.Signals), len(shifted.Dropped))
		case domain.ModeLookahead:
			p.logger.Warn("running without signal shift; results are inflated by look-ahead bias")
			res.Causal = shift.Unshifted(det.Signals)
		default:
			return nil, fmt.Errorf("invalid signal mode %q", l.mode)
		}

		engine, err := backtest.NewEngine(p.cfg.Strategy, backtest.EngineOptions{
			RunID:  l.runID,
			Symbol: symbol,
			Mode:   l.mode,
			Logger: p.logger,
		})
		if err != nil {
			return nil, err
		}
		if err := engine.Submit(res.Causal...); err != nil {
			return nil, err
		}
		results[i] = res
		engines[i] = engine
		fanout[i] = engine
	}

	if err := replay.Replay(ctx, ticks, fanout); err != nil {
		p.recordRuns(legs, "error", start)
		return nil, err
	}

	for i, engine := range engines {
		bt, err := engine.Finish()
		if err != nil {
			p.recordRuns(legs, "error", start)
			return nil, err
		}
		res := results[i]
		res.Backtest = bt
		for _, tr := range bt.Trades {
			p.metrics.RecordTrade(tr.ExitReason.String(), tr.ProfitDollars)
		}
		p.logger.Info("backtest complete",
			zap.String("run_id", res.RunID),
			zap.String("mode", res.Mode.String()),
			zap.Int("signals", len(res.Causal)),
			zap.Int("dropped", len(res.Dropped)),
			zap.Int("trades", len(bt.Trades)),
		)
	}
	p.recordRuns(legs, "success", start)
	return results, nil
}

func (p *Pipeline) recordRuns(legs []leg, status string, start time.Time) {
	elapsed := time.Since(start).Seconds()
	for _, l := range legs {
		p.metrics.RecordPipelineRun(l.mode.String(), status, elapsed)
	}
}

// Run executes detection and a backtest in the given mode.
func (p *Pipeline) Run(ctx context.Context, ticks []*domain.Tick, runID, symbol string, mode domain.SignalMode) (*Result, error) {
	det, err := p.Detect(ctx, ticks)
	if err != nil {
		return nil, err
	}
	return p.Backtest(ctx, det, ticks, runID, symbol, mode)
}

// LookaheadRunID derives the run ID under which Compare stores the biased
// twin of runID, so the two ledgers never share a run.
func LookaheadRunID(runID string) string {
	return runID + "-lookahead"
}

// Compare runs detection once and backtests both modes in a single replay.
func (p *Pipeline) Compare(ctx context.Context, ticks []*domain.Tick, runID, symbol string) (*Comparison, error) {
	det, err := p.Detect(ctx, ticks)
	if err != nil {
		return nil, err
	}
	results, err := p.backtest(ctx, det, ticks, symbol,
		leg{runID: runID, mode: domain.ModeCausal},
		leg{runID: LookaheadRunID(runID), mode: domain.ModeLookahead},
	)
	if err != nil {
		return nil, err
	}
	return &Comparison{Causal: results[0], Lookahead: results[1]}, nil
}

func (p *Pipeline) recordOutcomes(outcomes []absorption.Outcome) []absorption.Outcome {
	for _, o := range outcomes {
		p.metrics.RecordCandidate(outcomeLabel(o))
	}
	return outcomes
}

func outcomeLabel(o absorption.Outcome) string {
	switch {
	case o.NoFuture:
		return "no_future"
	case o.Fake:
		return "fake"
	case o.Absorbed:
		return "absorbed"
	default:
		return "reacted"
	}
}
