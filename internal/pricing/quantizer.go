// Package pricing maps raw prices onto an instrument's tick grid.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidTickSize is returned for a non-positive tick size.
var ErrInvalidTickSize = errors.New("tick size must be positive")

// Quantizer rounds prices to the nearest multiple of a tick size.
// Levels are identified by an integer tick index so that identical raw
// prices always share one bucket, independent of float representation.
type Quantizer struct {
	tick decimal.Decimal
}

// NewQuantizer creates a quantizer for the given tick size.
func NewQuantizer(tickSize float64) (*Quantizer, error) {
	if !(tickSize > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTickSize, tickSize)
	}
	return &Quantizer{tick: decimal.NewFromFloat(tickSize)}, nil
}

// TickSize returns the configured tick size.
func (q *Quantizer) TickSize() float64 {
	return q.tick.InexactFloat64()
}

// Key returns the tick index nearest to price. Halves round away from zero.
func (q *Quantizer) Key(price float64) int64 {
	return decimal.NewFromFloat(price).Div(q.tick).Round(0).IntPart()
}

// Price returns the price of a tick index.
func (q *Quantizer) Price(key int64) float64 {
	return decimal.NewFromInt(key).Mul(q.tick).InexactFloat64()
}

// Round snaps price to the tick grid.
func (q *Quantizer) Round(price float64) float64 {
	return q.Price(q.Key(price))
}

// Ticks expresses a price distance in ticks.
func (q *Quantizer) Ticks(distance float64) float64 {
	return decimal.NewFromFloat(distance).Div(q.tick).InexactFloat64()
}

// ParsePrice parses a decimal string, accepting ',' as the decimal mark.
func ParsePrice(raw string) (float64, error) {
	d, err := decimal.NewFromString(normalizeDecimal(raw))
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return d.InexactFloat64(), nil
}

func normalizeDecimal(raw string) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; c {
		case ',':
			out = append(out, '.')
		case ' ', '\t':
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
