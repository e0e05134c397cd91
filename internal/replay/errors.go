package replay

import "errors"

// ErrInvalidOrdering is returned when ticks are not in (timestamp, seq) order.
var ErrInvalidOrdering = errors.New("ticks are not in deterministic order")
