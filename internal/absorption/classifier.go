// Package absorption decides which volume anomalies were absorbed: the
// reactive price move normally caused by the volume did not happen within
// a forward window. Results depend on ticks after the anomaly and must be
// passed through the shift package before any replay or live use.
package absorption

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/pricing"
)

// Config configures a Classifier.
type Config struct {
	Lookahead         time.Duration // forward window (t, t + Lookahead]
	TickSize          float64
	ExpectedMoveTicks float64 // minimum reactive move that disqualifies absorption
	// FakeFilter discards a candidate when a stronger same-side anomaly
	// occurs inside its forward window.
	FakeFilter bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Lookahead <= 0 {
		return fmt.Errorf("lookahead must be positive, got %v", c.Lookahead)
	}
	if c.ExpectedMoveTicks <= 0 {
		return fmt.Errorf("expected move ticks must be positive, got %v", c.ExpectedMoveTicks)
	}
	return nil
}

// Density is the anomaly density at detection time.
type Density struct {
	Bid int
	Ask int
}

type candidate struct {
	ev          domain.AnomalyEvent
	density     Density
	deadline    int64
	extreme     float64
	seen        bool
	invalidated bool
}

// Outcome is the classification of one anomaly, emitted whether or not it
// qualified, so callers can account for every candidate.
type Outcome struct {
	Signal    domain.AbsorptionSignal
	Absorbed  bool
	NoFuture  bool // no tick arrived after detection
	Fake      bool // superseded by a stronger same-side anomaly
	MoveTicks float64
	Anomaly   domain.AnomalyEvent
}

// Classifier tracks pending anomalies until their forward window closes.
// Not safe for concurrent use.
type Classifier struct {
	cfg         Config
	lookaheadMs int64
	q           *pricing.Quantizer
	pending     []*candidate
	logger      *zap.Logger
}

// NewClassifier creates a Classifier. A nil logger discards diagnostics.
func NewClassifier(cfg Config, logger *zap.Logger) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	q, err := pricing.NewQuantizer(cfg.TickSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		cfg:         cfg,
		lookaheadMs: cfg.Lookahead.Milliseconds(),
		q:           q,
		logger:      logger,
	}, nil
}

// Pending returns the number of anomalies awaiting their forward window.
func (c *Classifier) Pending() int {
	return len(c.pending)
}

// Observe feeds the next tick. Candidates whose forward window ended before
// this tick are finalized and returned in detection order; the tick then
// extends the forward window of the remaining candidates.
func (c *Classifier) Observe(t *domain.Tick) []Outcome {
	var out []Outcome
	n := 0
	for n < len(c.pending) && c.pending[n].deadline < t.TimestampMs {
		out = append(out, c.finalize(c.pending[n]))
		n++
	}
	c.drop(n)

	price := c.q.Round(t.Price)
	for _, cand := range c.pending {
		if t.TimestampMs <= cand.ev.TimestampMs {
			continue
		}
		switch {
		case !cand.seen:
			cand.extreme = price
		case cand.ev.Side == domain.SideBid:
			cand.extreme = math.Min(cand.extreme, price)
		default:
			cand.extreme = math.Max(cand.extreme, price)
		}
		cand.seen = true
	}
	return out
}

// Add registers an anomaly as a candidate. Events that are not anomalies
// are ignored. Call after Observe for the tick that produced ev.
func (c *Classifier) Add(ev domain.AnomalyEvent, density Density) {
	if !ev.IsAnomaly {
		return
	}
	if c.cfg.FakeFilter {
		for _, cand := range c.pending {
			if cand.ev.Side == ev.Side &&
				ev.TimestampMs > cand.ev.TimestampMs &&
				math.Abs(ev.ZScore) > math.Abs(cand.ev.ZScore) {
				cand.invalidated = true
			}
		}
	}
	c.pending = append(c.pending, &candidate{
		ev:       ev,
		density:  density,
		deadline: ev.TimestampMs + c.lookaheadMs,
	})
}

// Flush finalizes every pending candidate with the data seen so far.
// Used at end of data.
func (c *Classifier) Flush() []Outcome {
	out := make([]Outcome, 0, len(c.pending))
	for _, cand := range c.pending {
		out = append(out, c.finalize(cand))
	}
	c.drop(len(c.pending))
	return out
}

func (c *Classifier) drop(n int) {
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		c.pending[i] = nil
	}
	c.pending = append(c.pending[:0], c.pending[n:]...)
}

func (c *Classifier) finalize(cand *candidate) Outcome {
	ev := cand.ev
	o := Outcome{Anomaly: ev, Fake: cand.invalidated}
	if !cand.seen {
		o.NoFuture = true
		c.logger.Info("dropping incomplete signal: no tick after detection",
			zap.String("symbol", ev.Symbol),
			zap.Int64("detection_ms", ev.TimestampMs),
			zap.Float64("price", ev.Price),
			zap.String("side", ev.Side.String()),
		)
		return o
	}

	if ev.Side == domain.SideBid {
		o.MoveTicks = c.q.Ticks(ev.Price - cand.extreme)
	} else {
		o.MoveTicks = c.q.Ticks(cand.extreme - ev.Price)
	}
	o.Absorbed = o.MoveTicks < c.cfg.ExpectedMoveTicks && !cand.invalidated

	o.Signal = domain.AbsorptionSignal{
		Symbol:       ev.Symbol,
		TimestampMs:  ev.TimestampMs,
		Side:         ev.Side,
		TriggerPrice: ev.Price,
		Kind:         domain.KindForSide(ev.Side),
		ZScore:       ev.ZScore,
		Volume:       ev.Volume,
		MoveTicks:    o.MoveTicks,
		BidDensity:   cand.density.Bid,
		AskDensity:   cand.density.Ask,
		NetDensity:   cand.density.Ask - cand.density.Bid,
	}
	return o
}

// Signals filters outcomes down to absorption signals.
func Signals(outcomes []Outcome) []domain.AbsorptionSignal {
	var out []domain.AbsorptionSignal
	for _, o := range outcomes {
		if o.Absorbed {
			out = append(out, o.Signal)
		}
	}
	return out
}
