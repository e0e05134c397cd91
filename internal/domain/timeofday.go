package domain

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time within a trading day.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

// String formats as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// SecondsOfDay returns seconds since midnight.
func (t TimeOfDay) SecondsOfDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// ReachedAt reports whether the wall-clock time of timestampMs, in loc,
// is at or after t.
func (t TimeOfDay) ReachedAt(timestampMs int64, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	wall := time.UnixMilli(timestampMs).In(loc)
	secs := wall.Hour()*3600 + wall.Minute()*60 + wall.Second()
	return secs >= t.SecondsOfDay()
}
