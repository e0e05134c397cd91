// Package profile maintains a sliding-window order-flow profile: traded
// volume and trade counts per quantized price level and side.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/pricing"
)

// ErrOutOfOrder is returned when a tick or clock advance moves backwards in time.
var ErrOutOfOrder = errors.New("timestamp precedes last processed tick")

// compactThreshold bounds how many evicted slots are kept before the
// buffer is compacted.
const compactThreshold = 1024

// Config configures a RollingProfile.
type Config struct {
	Window   time.Duration
	TickSize float64
}

type entry struct {
	ts     int64
	key    int64
	side   domain.Side
	volume int64
}

type level struct {
	bidVolume int64
	askVolume int64
	bidCount  int64
	askCount  int64
}

func (l *level) empty() bool {
	return l.bidVolume <= 0 && l.askVolume <= 0 && l.bidCount <= 0 && l.askCount <= 0
}

// RollingProfile aggregates ticks whose timestamp lies in (now - window, now],
// where now is the latest processed tick or clock advance.
// Not safe for concurrent use; see pipeline.Live for the single-writer wrapper.
type RollingProfile struct {
	windowMs int64
	q        *pricing.Quantizer

	buf  []entry
	head int

	levels map[int64]*level

	now     int64
	started bool
}

// New creates an empty rolling profile.
func New(cfg Config) (*RollingProfile, error) {
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("profile window must be positive, got %v", cfg.Window)
	}
	q, err := pricing.NewQuantizer(cfg.TickSize)
	if err != nil {
		return nil, err
	}
	return &RollingProfile{
		windowMs: cfg.Window.Milliseconds(),
		q:        q,
		levels:   make(map[int64]*level),
	}, nil
}

// Update adds a tick and evicts everything that fell out of the window.
// Ticks must arrive with non-decreasing timestamps. A contribution expires
// once its timestamp is <= now - Window, so the profile covers the half-open
// span (now - Window, now]; a tick exactly Window old is already excluded,
// unlike a strict "< cutoff" expiry that would keep it.
func (p *RollingProfile) Update(t *domain.Tick) error {
	if t == nil || !t.Side.IsValid() {
		return fmt.Errorf("invalid tick: %+v", t)
	}
	if p.started && t.TimestampMs < p.now {
		return fmt.Errorf("%w: %d < %d", ErrOutOfOrder, t.TimestampMs, p.now)
	}

	key := p.q.Key(t.Price)
	p.buf = append(p.buf, entry{ts: t.TimestampMs, key: key, side: t.Side, volume: t.Volume})

	lvl, ok := p.levels[key]
	if !ok {
		lvl = &level{}
		p.levels[key] = lvl
	}
	if t.Side == domain.SideBid {
		lvl.bidVolume += t.Volume
		lvl.bidCount++
	} else {
		lvl.askVolume += t.Volume
		lvl.askCount++
	}

	p.now = t.TimestampMs
	p.started = true
	p.evict()
	return nil
}

// Advance moves the window's right edge to nowMs without adding a tick.
func (p *RollingProfile) Advance(nowMs int64) error {
	if p.started && nowMs < p.now {
		return fmt.Errorf("%w: %d < %d", ErrOutOfOrder, nowMs, p.now)
	}
	p.now = nowMs
	p.started = true
	p.evict()
	return nil
}

// evict drops ticks with ts <= now - window. Ticks sharing a timestamp are
// contiguous, so equal timestamps at the head leave together.
func (p *RollingProfile) evict() {
	cutoff := p.now - p.windowMs
	for p.head < len(p.buf) && p.buf[p.head].ts <= cutoff {
		e := p.buf[p.head]
		p.buf[p.head] = entry{}
		p.head++

		lvl := p.levels[e.key]
		if e.side == domain.SideBid {
			lvl.bidVolume -= e.volume
			lvl.bidCount--
		} else {
			lvl.askVolume -= e.volume
			lvl.askCount--
		}
		if lvl.empty() {
			delete(p.levels, e.key)
		}
	}

	if p.head == len(p.buf) {
		p.buf = p.buf[:0]
		p.head = 0
		return
	}
	if p.head >= compactThreshold && p.head*2 >= len(p.buf) {
		n := copy(p.buf, p.buf[p.head:])
		p.buf = p.buf[:n]
		p.head = 0
	}
}

// Now returns the window's right edge in milliseconds.
func (p *RollingProfile) Now() int64 {
	return p.now
}

// Len returns the number of ticks inside the window.
func (p *RollingProfile) Len() int {
	return len(p.buf) - p.head
}

// Profile returns a copy of all levels with nonzero volume.
func (p *RollingProfile) Profile() domain.Profile {
	out := make(domain.Profile, len(p.levels))
	for key, lvl := range p.levels {
		if lvl.bidVolume <= 0 && lvl.askVolume <= 0 {
			continue
		}
		price := p.q.Price(key)
		out[price] = p.aggregate(price, lvl)
	}
	return out
}

func (p *RollingProfile) aggregate(price float64, lvl *level) domain.PriceLevelAggregate {
	return domain.PriceLevelAggregate{
		Price:         price,
		BidVolume:     lvl.bidVolume,
		AskVolume:     lvl.askVolume,
		BidTradeCount: lvl.bidCount,
		AskTradeCount: lvl.askCount,
	}
}

// Level returns the aggregate for the level containing price.
func (p *RollingProfile) Level(price float64) (domain.PriceLevelAggregate, bool) {
	key := p.q.Key(price)
	lvl, ok := p.levels[key]
	if !ok {
		return domain.PriceLevelAggregate{}, false
	}
	return p.aggregate(p.q.Price(key), lvl), true
}

// VolumeAt returns windowed volume at price for side.
func (p *RollingProfile) VolumeAt(price float64, side domain.Side) int64 {
	lvl, ok := p.levels[p.q.Key(price)]
	if !ok {
		return 0
	}
	if side == domain.SideAsk {
		return lvl.askVolume
	}
	return lvl.bidVolume
}

// TradeCountAt returns the windowed trade count at price for side.
func (p *RollingProfile) TradeCountAt(price float64, side domain.Side) int64 {
	lvl, ok := p.levels[p.q.Key(price)]
	if !ok {
		return 0
	}
	if side == domain.SideAsk {
		return lvl.askCount
	}
	return lvl.bidCount
}

// MaxAskLevel returns the highest price with ask volume.
func (p *RollingProfile) MaxAskLevel() (domain.PriceLevelAggregate, bool) {
	var (
		bestKey int64
		found   bool
	)
	for key, lvl := range p.levels {
		if lvl.askVolume > 0 && (!found || key > bestKey) {
			bestKey, found = key, true
		}
	}
	if !found {
		return domain.PriceLevelAggregate{}, false
	}
	return p.aggregate(p.q.Price(bestKey), p.levels[bestKey]), true
}

// MinBidLevel returns the lowest price with bid volume.
func (p *RollingProfile) MinBidLevel() (domain.PriceLevelAggregate, bool) {
	var (
		bestKey int64
		found   bool
	)
	for key, lvl := range p.levels {
		if lvl.bidVolume > 0 && (!found || key < bestKey) {
			bestKey, found = key, true
		}
	}
	if !found {
		return domain.PriceLevelAggregate{}, false
	}
	return p.aggregate(p.q.Price(bestKey), p.levels[bestKey]), true
}

// TopLevelsByVolume returns up to n levels ordered by total volume DESC,
// ties broken by price ASC.
func (p *RollingProfile) TopLevelsByVolume(n int) []domain.PriceLevelAggregate {
	if n <= 0 {
		return nil
	}
	keys := make([]int64, 0, len(p.levels))
	for key, lvl := range p.levels {
		if lvl.bidVolume+lvl.askVolume > 0 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		vi := p.levels[keys[i]].bidVolume + p.levels[keys[i]].askVolume
		vj := p.levels[keys[j]].bidVolume + p.levels[keys[j]].askVolume
		if vi != vj {
			return vi > vj
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}

	out := make([]domain.PriceLevelAggregate, len(keys))
	for i, key := range keys {
		out[i] = p.aggregate(p.q.Price(key), p.levels[key])
	}
	return out
}
