package detector

import (
	"time"

	"orderflow-lab/internal/domain"
)

// DensityTracker counts recent anomalies per side over a trailing window
// (t - window, t]. Counts only use anomalies already observed, so they are
// known at detection time.
type DensityTracker struct {
	windowMs int64
	bid      []int64
	ask      []int64
}

// NewDensityTracker creates a tracker. A non-positive window disables counting.
func NewDensityTracker(window time.Duration) *DensityTracker {
	return &DensityTracker{windowMs: window.Milliseconds()}
}

// Record registers an anomaly. Non-anomalous events are ignored.
func (d *DensityTracker) Record(ev domain.AnomalyEvent) {
	if !ev.IsAnomaly || d.windowMs <= 0 {
		return
	}
	if ev.Side == domain.SideAsk {
		d.ask = append(d.ask, ev.TimestampMs)
	} else {
		d.bid = append(d.bid, ev.TimestampMs)
	}
}

// Counts returns bid and ask anomaly counts in (nowMs - window, nowMs].
func (d *DensityTracker) Counts(nowMs int64) (bid, ask int) {
	cutoff := nowMs - d.windowMs
	d.bid = trimBefore(d.bid, cutoff)
	d.ask = trimBefore(d.ask, cutoff)
	return len(d.bid), len(d.ask)
}

func trimBefore(ts []int64, cutoff int64) []int64 {
	i := 0
	for i < len(ts) && ts[i] <= cutoff {
		i++
	}
	if i == 0 {
		return ts
	}
	if i == len(ts) {
		return ts[:0]
	}
	return append(ts[:0], ts[i:]...)
}
