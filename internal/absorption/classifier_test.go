package absorption

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"orderflow-lab/internal/domain"
)

func testConfig() Config {
	return Config{
		Lookahead:         60 * time.Second,
		TickSize:          0.25,
		ExpectedMoveTicks: 2,
	}
}

func mustClassifier(t *testing.T, cfg Config) *Classifier {
	t.Helper()
	c, err := NewClassifier(cfg, nil)
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}
	return c
}

func anomaly(ts int64, price float64, side domain.Side, z float64) domain.AnomalyEvent {
	return domain.AnomalyEvent{TimestampMs: ts, Price: price, Side: side, Volume: 5000, ZScore: z, IsAnomaly: true}
}

func tickAt(ts int64, price float64) *domain.Tick {
	return &domain.Tick{TimestampMs: ts, Price: price, Volume: 1, Side: domain.SideAsk}
}

// feed runs ticks through the classifier, returning every finalized outcome.
func feed(c *Classifier, ticks ...*domain.Tick) []Outcome {
	var out []Outcome
	for _, tk := range ticks {
		out = append(out, c.Observe(tk)...)
	}
	return out
}

func TestClassifier_BidAbsorption(t *testing.T) {
	c := mustClassifier(t, testConfig())

	c.Add(anomaly(0, 100, domain.SideBid, 3.1), Density{Bid: 2, Ask: 1})
	outs := feed(c,
		tickAt(10_000, 100),
		tickAt(20_000, 99.75), // one tick drop: below expected move
		tickAt(60_000, 100.25),
	)
	if len(outs) != 0 {
		t.Fatalf("window still open, got %d outcomes", len(outs))
	}

	outs = feed(c, tickAt(60_001, 95)) // past the window, ignored for extremes
	if len(outs) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outs))
	}
	o := outs[0]
	if !o.Absorbed {
		t.Fatalf("expected absorption, got %+v", o)
	}
	if o.MoveTicks != 1 {
		t.Errorf("MoveTicks = %v, want 1", o.MoveTicks)
	}
	sig := o.Signal
	if sig.Kind != domain.SignalBidAbsorption || sig.TimestampMs != 0 || sig.TriggerPrice != 100 {
		t.Errorf("unexpected signal: %+v", sig)
	}
	if sig.BidDensity != 2 || sig.AskDensity != 1 || sig.NetDensity != -1 {
		t.Errorf("unexpected density: %+v", sig)
	}
}

func TestClassifier_ReactiveMoveDisqualifies(t *testing.T) {
	c := mustClassifier(t, testConfig())

	c.Add(anomaly(0, 100, domain.SideBid, 3), Density{})
	outs := feed(c, tickAt(5_000, 99.50), tickAt(70_000, 99.50))
	if len(outs) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outs))
	}
	if outs[0].Absorbed {
		t.Errorf("two tick drop must not be absorption: %+v", outs[0])
	}
	if got := Signals(outs); len(got) != 0 {
		t.Errorf("expected no signals, got %v", got)
	}
}

func TestClassifier_AskUsesMaximum(t *testing.T) {
	c := mustClassifier(t, testConfig())

	c.Add(anomaly(0, 100, domain.SideAsk, -2.5), Density{})
	outs := feed(c, tickAt(1_000, 99), tickAt(2_000, 100.25), tickAt(61_000, 100))
	if len(outs) != 1 || !outs[0].Absorbed {
		t.Fatalf("expected ask absorption, got %+v", outs)
	}
	if outs[0].Signal.Kind != domain.SignalAskAbsorption {
		t.Errorf("unexpected kind %v", outs[0].Signal.Kind)
	}
	if outs[0].MoveTicks != 1 {
		t.Errorf("MoveTicks = %v, want 1", outs[0].MoveTicks)
	}
}

func TestClassifier_SameTimestampTicksAreNotFuture(t *testing.T) {
	c := mustClassifier(t, testConfig())

	c.Add(anomaly(1_000, 100, domain.SideBid, 3), Density{})
	feed(c, tickAt(1_000, 90))
	outs := c.Flush()
	if len(outs) != 1 || !outs[0].NoFuture {
		t.Fatalf("expected NoFuture outcome, got %+v", outs)
	}
	if outs[0].Absorbed {
		t.Error("candidate without future ticks must not be absorbed")
	}
}

func TestClassifier_LogsIncompleteSignal(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c, err := NewClassifier(testConfig(), zap.New(core))
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}

	c.Add(anomaly(1_000, 100, domain.SideBid, 3), Density{})
	outs := c.Flush()
	if len(outs) != 1 || !outs[0].NoFuture {
		t.Fatalf("expected NoFuture outcome, got %+v", outs)
	}

	entries := logs.FilterMessageSnippet("incomplete signal").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 incomplete-signal log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["detection_ms"]; got != int64(1_000) {
		t.Errorf("detection_ms = %v, want 1000", got)
	}
}

func TestClassifier_FlushUsesPartialWindow(t *testing.T) {
	c := mustClassifier(t, testConfig())

	c.Add(anomaly(0, 100, domain.SideBid, 3), Density{})
	feed(c, tickAt(30_000, 100))
	outs := c.Flush()
	if len(outs) != 1 || !outs[0].Absorbed {
		t.Fatalf("expected absorbed outcome on flush, got %+v", outs)
	}
	if c.Pending() != 0 {
		t.Errorf("expected no pending candidates, got %d", c.Pending())
	}
}

func TestClassifier_FakeFilter(t *testing.T) {
	cfg := testConfig()
	cfg.FakeFilter = true
	c := mustClassifier(t, cfg)

	c.Add(anomaly(0, 100, domain.SideBid, 2.0), Density{})
	feed(c, tickAt(10_000, 100))
	c.Add(anomaly(10_000, 100, domain.SideBid, 4.0), Density{})
	// An ask anomaly never invalidates bid candidates.
	c.Add(anomaly(10_000, 100, domain.SideAsk, 9.0), Density{})

	outs := feed(c, tickAt(20_000, 100), tickAt(80_000, 100))
	if len(outs) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outs))
	}
	if !outs[0].Fake || outs[0].Absorbed {
		t.Errorf("first candidate should be fake: %+v", outs[0])
	}
	if outs[1].Fake || !outs[1].Absorbed {
		t.Errorf("second candidate should be absorbed: %+v", outs[1])
	}

	// Without the filter both bid candidates qualify.
	c = mustClassifier(t, testConfig())
	c.Add(anomaly(0, 100, domain.SideBid, 2.0), Density{})
	feed(c, tickAt(10_000, 100))
	c.Add(anomaly(10_000, 100, domain.SideBid, 4.0), Density{})
	outs = feed(c, tickAt(20_000, 100), tickAt(80_000, 100))
	if got := Signals(outs); len(got) != 2 {
		t.Errorf("expected 2 signals without filter, got %d", len(got))
	}
}

func TestClassifier_IgnoresNonAnomalies(t *testing.T) {
	c := mustClassifier(t, testConfig())
	ev := anomaly(0, 100, domain.SideBid, 0.5)
	ev.IsAnomaly = false
	c.Add(ev, Density{})
	if c.Pending() != 0 {
		t.Errorf("non-anomaly registered as candidate")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig()
	cfg.Lookahead = 0
	if _, err := NewClassifier(cfg, nil); err == nil {
		t.Error("expected error for zero lookahead")
	}
	cfg = testConfig()
	cfg.ExpectedMoveTicks = 0
	if _, err := NewClassifier(cfg, nil); err == nil {
		t.Error("expected error for zero expected move")
	}
}
