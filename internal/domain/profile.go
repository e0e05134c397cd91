package domain

// PriceLevelAggregate holds windowed volume and trade counts for one
// quantized price level.
type PriceLevelAggregate struct {
	Price         float64
	BidVolume     int64
	AskVolume     int64
	BidTradeCount int64
	AskTradeCount int64
}

// TotalVolume returns bid plus ask volume.
func (a PriceLevelAggregate) TotalVolume() int64 {
	return a.BidVolume + a.AskVolume
}

// VolumeFor returns the volume of the given side.
func (a PriceLevelAggregate) VolumeFor(side Side) int64 {
	if side == SideAsk {
		return a.AskVolume
	}
	return a.BidVolume
}

// Profile maps quantized price to its aggregate. Only levels with nonzero
// volume are present.
type Profile map[float64]PriceLevelAggregate

// TotalVolume sums volume across all levels.
func (p Profile) TotalVolume() int64 {
	var total int64
	for _, lvl := range p {
		total += lvl.TotalVolume()
	}
	return total
}

// WindowedStat summarizes a per-price volume distribution.
type WindowedStat struct {
	Mean        float64
	StdDev      float64
	SampleCount int // number of price levels
	TickCount   int // number of ticks aggregated
}
