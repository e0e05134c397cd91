package lookup

import (
	"errors"

	"orderflow-lab/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoTickData = errors.New("no tick data available")
	ErrBeyondData = errors.New("target beyond end of tick data")
)

// FirstAtOrAfter returns the index of the earliest tick with
// TimestampMs >= target, scanning forward from start. Ticks must be
// time-ordered. Returns ErrBeyondData when no such tick exists.
func FirstAtOrAfter(target int64, ticks []*domain.Tick, start int) (int, error) {
	if len(ticks) == 0 {
		return 0, ErrNoTickData
	}
	if start < 0 {
		start = 0
	}
	for i := start; i < len(ticks); i++ {
		if ticks[i].TimestampMs >= target {
			return i, nil
		}
	}
	return len(ticks), ErrBeyondData
}
