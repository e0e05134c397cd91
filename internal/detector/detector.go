// Package detector flags statistically anomalous same-side volume at a
// price level, relative to the trailing distribution of volume across levels.
package detector

import (
	"errors"
	"fmt"
	"math"
	"time"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/pricing"
)

// ErrOutOfOrder is returned when ticks arrive with decreasing timestamps.
var ErrOutOfOrder = errors.New("detector: tick precedes last processed tick")

// Config configures an AnomalyDetector.
type Config struct {
	StatsWindow     time.Duration // trailing window for the volume distribution
	TickSize        float64
	ZScoreThreshold float64
	MinPriceLevels  int // distinct same-side levels required to evaluate
	MinTicks        int // same-side ticks required to evaluate
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StatsWindow <= 0 {
		return fmt.Errorf("stats window must be positive, got %v", c.StatsWindow)
	}
	if c.ZScoreThreshold < 0 {
		return fmt.Errorf("z-score threshold must be non-negative, got %v", c.ZScoreThreshold)
	}
	if c.MinPriceLevels < 2 {
		return fmt.Errorf("min price levels must be at least 2, got %d", c.MinPriceLevels)
	}
	if c.MinTicks < 1 {
		return fmt.Errorf("min ticks must be at least 1, got %d", c.MinTicks)
	}
	return nil
}

type sample struct {
	ts     int64
	key    int64
	side   domain.Side
	volume int64
}

// sideStats tracks the per-level volume distribution of one side. The mean
// comes from a running sum; the variance is recomputed over the levels in
// float64 so large volumes cannot overflow.
type sideStats struct {
	levels  map[int64]int64
	sum     int64 // sum of level volumes
	nonZero int   // levels with volume > 0
	ticks   int
}

func newSideStats() *sideStats {
	return &sideStats{levels: make(map[int64]int64)}
}

func (s *sideStats) add(key, delta int64) {
	old := s.levels[key]
	cur := old + delta
	s.sum += delta
	switch {
	case old <= 0 && cur > 0:
		s.nonZero++
	case old > 0 && cur <= 0:
		s.nonZero--
	}
	if cur == 0 {
		delete(s.levels, key)
	} else {
		s.levels[key] = cur
	}
}

func (s *sideStats) stat() domain.WindowedStat {
	st := domain.WindowedStat{SampleCount: s.nonZero, TickCount: s.ticks}
	if s.nonZero == 0 {
		return st
	}
	n := float64(s.nonZero)
	st.Mean = float64(s.sum) / n
	if s.nonZero > 1 {
		var ss float64
		for _, v := range s.levels {
			if v > 0 {
				d := float64(v) - st.Mean
				ss += d * d
			}
		}
		st.StdDev = math.Sqrt(ss / (n - 1))
	}
	return st
}

// AnomalyDetector evaluates each tick against the same-side volume
// distribution in [t - StatsWindow, t], current tick included.
// Not safe for concurrent use.
type AnomalyDetector struct {
	cfg      Config
	windowMs int64
	q        *pricing.Quantizer

	buf  []sample
	head int
	bid  *sideStats
	ask  *sideStats

	last    int64
	started bool
}

// New creates an AnomalyDetector.
func New(cfg Config) (*AnomalyDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	q, err := pricing.NewQuantizer(cfg.TickSize)
	if err != nil {
		return nil, err
	}
	return &AnomalyDetector{
		cfg:      cfg,
		windowMs: cfg.StatsWindow.Milliseconds(),
		q:        q,
		bid:      newSideStats(),
		ask:      newSideStats(),
	}, nil
}

func (d *AnomalyDetector) stats(side domain.Side) *sideStats {
	if side == domain.SideAsk {
		return d.ask
	}
	return d.bid
}

// Observe adds the tick to the trailing window and evaluates it.
// ok is false when the window is under-sampled; that is a "no signal"
// outcome, not an error.
func (d *AnomalyDetector) Observe(t *domain.Tick) (ev domain.AnomalyEvent, ok bool, err error) {
	if t == nil || !t.Side.IsValid() {
		return ev, false, fmt.Errorf("invalid tick: %+v", t)
	}
	if d.started && t.TimestampMs < d.last {
		return ev, false, fmt.Errorf("%w: %d < %d", ErrOutOfOrder, t.TimestampMs, d.last)
	}
	d.last = t.TimestampMs
	d.started = true

	key := d.q.Key(t.Price)
	d.buf = append(d.buf, sample{ts: t.TimestampMs, key: key, side: t.Side, volume: t.Volume})
	s := d.stats(t.Side)
	s.add(key, t.Volume)
	s.ticks++
	d.evict(t.TimestampMs - d.windowMs)

	st := s.stat()
	if st.SampleCount < d.cfg.MinPriceLevels || st.TickCount < d.cfg.MinTicks {
		return ev, false, nil
	}

	levelVolume := s.levels[key]
	var z float64
	if st.StdDev > 0 {
		z = (float64(levelVolume) - st.Mean) / st.StdDev
	}

	return domain.AnomalyEvent{
		Symbol:      t.Symbol,
		TimestampMs: t.TimestampMs,
		Seq:         t.Seq,
		Price:       d.q.Price(key),
		Side:        t.Side,
		Volume:      levelVolume,
		ZScore:      z,
		IsAnomaly:   math.Abs(z) >= d.cfg.ZScoreThreshold,
		Stat:        st,
	}, true, nil
}

// evict drops samples strictly older than cutoff.
func (d *AnomalyDetector) evict(cutoff int64) {
	for d.head < len(d.buf) && d.buf[d.head].ts < cutoff {
		e := d.buf[d.head]
		d.buf[d.head] = sample{}
		d.head++

		s := d.stats(e.side)
		s.add(e.key, -e.volume)
		s.ticks--
	}

	if d.head == len(d.buf) {
		d.buf = d.buf[:0]
		d.head = 0
	} else if d.head >= 1024 && d.head*2 >= len(d.buf) {
		n := copy(d.buf, d.buf[d.head:])
		d.buf = d.buf[:n]
		d.head = 0
	}
}

// Stat returns the current distribution summary for side.
func (d *AnomalyDetector) Stat(side domain.Side) domain.WindowedStat {
	return d.stats(side).stat()
}
