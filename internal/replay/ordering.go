package replay

import (
	"sort"

	"orderflow-lab/internal/domain"
)

// SortTicks orders ticks by (timestamp ASC, seq ASC). The sort is stable so
// ticks with identical keys keep their arrival order.
func SortTicks(ticks []*domain.Tick) {
	sort.SliceStable(ticks, func(i, j int) bool {
		return compareTicks(ticks[i], ticks[j]) < 0
	})
}

// ValidateOrdering checks that ticks are strictly ordered by (timestamp, seq).
// Returns ErrInvalidOrdering if not.
func ValidateOrdering(ticks []*domain.Tick) error {
	for i := 1; i < len(ticks); i++ {
		if compareTicks(ticks[i-1], ticks[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareTicks returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (timestamp ASC, seq ASC)
func compareTicks(a, b *domain.Tick) int {
	if a.TimestampMs != b.TimestampMs {
		if a.TimestampMs < b.TimestampMs {
			return -1
		}
		return 1
	}
	if a.Seq != b.Seq {
		if a.Seq < b.Seq {
			return -1
		}
		return 1
	}
	return 0
}
