package domain

import (
	"fmt"
	"strings"
)

// Side is the side of the book a trade executed against.
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideBid || s == SideAsk
}

// ParseSide converts raw input into a Side. Matching is case-insensitive
// and ignores surrounding whitespace.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case SideBid:
		return SideBid, nil
	case SideAsk:
		return SideAsk, nil
	default:
		return "", fmt.Errorf("unrecognized side %q", raw)
	}
}

// PositionSide is the direction of a simulated position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// String returns the string representation of PositionSide.
func (p PositionSide) String() string {
	return string(p)
}

// IsValid checks if the position side is a valid value.
func (p PositionSide) IsValid() bool {
	return p == PositionLong || p == PositionShort
}

// Direction returns +1 for LONG and -1 for SHORT.
func (p PositionSide) Direction() float64 {
	if p == PositionShort {
		return -1
	}
	return 1
}
