package pipeline

import (
	"time"

	"orderflow-lab/internal/absorption"
	"orderflow-lab/internal/backtest"
	"orderflow-lab/internal/detector"
	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/profile"
)

const (
	fixtureSymbol   = "ES"
	baselineCycles  = 120
	lookaheadMs     = 10_000
	anomalyVolume   = 5000
	postTickVolume  = 1
	tickSize        = 0.25
	bidBaselineBase = 98.00
	askBaselineBase = 100.25
)

// Per-cycle volume by level; the bell shape keeps baseline z-scores
// well below the test threshold.
var baselineShape = []int64{10, 20, 30, 40, 50, 40, 30, 20, 10}

func testConfig() Config {
	return Config{
		Profile: profile.Config{Window: 30 * time.Second, TickSize: tickSize},
		Detector: detector.Config{
			StatsWindow:     60 * time.Second,
			TickSize:        tickSize,
			ZScoreThreshold: 2.0,
			MinPriceLevels:  3,
			MinTicks:        5,
		},
		DensityWindow: 180 * time.Second,
		Absorption: absorption.Config{
			Lookahead:         lookaheadMs * time.Millisecond,
			TickSize:          tickSize,
			ExpectedMoveTicks: 4,
		},
		Strategy: backtest.StrategyConfig{
			TakeProfitPoints: 2.0,
			StopLossPoints:   2.0,
			PointValue:       50,
			Contracts:        1,
			MaxOpenPositions: 1,
			FilterMode:       backtest.FilterVolumeOnly,
		},
	}
}

// scenario builds the absorption fixture:
//   - 120 one-second cycles of BID ticks on 98.00..100.00 and ASK ticks on
//     100.25..102.25 with a bell-shaped volume profile;
//   - a BID print of 5000 at 100.00 at anomalyTs;
//   - ten seconds alternating 100.00 / 100.25 (no reactive drop);
//   - a rise to 102.00 followed by a fall to 98.25, one tick per second.
//
// Returns the ticks and the anomaly timestamp.
func scenario() ([]*domain.Tick, int64) {
	base := time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	var ticks []*domain.Tick
	add := func(ts int64, price float64, volume int64, side domain.Side) {
		ticks = append(ticks, &domain.Tick{
			Symbol:      fixtureSymbol,
			TimestampMs: ts,
			Seq:         int64(len(ticks)),
			Price:       price,
			Volume:      volume,
			Side:        side,
		})
	}

	for c := 0; c < baselineCycles; c++ {
		t := base + int64(c)*1000
		for i, vol := range baselineShape {
			add(t+int64(i)*50, bidBaselineBase+float64(i)*tickSize, vol, domain.SideBid)
		}
		for i, vol := range baselineShape {
			add(t+450+int64(i)*50, askBaselineBase+float64(i)*tickSize, vol, domain.SideAsk)
		}
	}

	anomalyTs := base + baselineCycles*1000
	add(anomalyTs, 100.00, anomalyVolume, domain.SideBid)

	for k := int64(1); k <= lookaheadMs/1000; k++ {
		price := 100.00
		if k%2 == 0 {
			price = 100.25
		}
		add(anomalyTs+k*1000, price, postTickVolume, domain.SideAsk)
	}

	k := int64(lookaheadMs/1000 + 1)
	for price := 100.50; price <= 102.00; price += tickSize {
		add(anomalyTs+k*1000, price, postTickVolume, domain.SideAsk)
		k++
	}
	for price := 101.75; price >= 98.25; price -= tickSize {
		add(anomalyTs+k*1000, price, postTickVolume, domain.SideAsk)
		k++
	}
	return ticks, anomalyTs
}

// ticksUntil returns the prefix of ticks with timestamp <= ts.
func ticksUntil(ticks []*domain.Tick, ts int64) []*domain.Tick {
	for i, t := range ticks {
		if t.TimestampMs > ts {
			return ticks[:i]
		}
	}
	return ticks
}
