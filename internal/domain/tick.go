package domain

// Tick is one executed trade. Ticks are immutable once produced.
// Ordering is (TimestampMs ASC, Seq ASC); Seq preserves arrival order
// between ticks sharing a timestamp.
type Tick struct {
	Symbol      string  // instrument identifier
	TimestampMs int64   // Unix timestamp in milliseconds
	Seq         int64   // arrival sequence within the source
	Price       float64 // execution price
	Volume      int64   // traded contracts, >= 0
	Side        Side    // BID | ASK
}

// Before reports whether t sorts strictly before o.
func (t *Tick) Before(o *Tick) bool {
	if t.TimestampMs != o.TimestampMs {
		return t.TimestampMs < o.TimestampMs
	}
	return t.Seq < o.Seq
}
