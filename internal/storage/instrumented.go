package storage

import (
	"context"
	"time"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/observability"
)

// instrument records latency and errors of one backend.
type instrument struct {
	database string
	metrics  *observability.Metrics
}

func (i instrument) observe(operation string, start time.Time, err error) {
	i.metrics.RecordDBQuery(i.database, operation, time.Since(start).Seconds(), err)
}

// InstrumentedTickStore records query metrics of a TickStore.
type InstrumentedTickStore struct {
	next TickStore
	instrument
}

// NewInstrumentedTickStore wraps next; database labels the metrics.
func NewInstrumentedTickStore(next TickStore, database string, m *observability.Metrics) *InstrumentedTickStore {
	return &InstrumentedTickStore{next: next, instrument: instrument{database, m}}
}

func (s *InstrumentedTickStore) InsertBulk(ctx context.Context, ticks []*domain.Tick) error {
	start := time.Now()
	err := s.next.InsertBulk(ctx, ticks)
	s.observe("tick_insert_bulk", start, err)
	return err
}

func (s *InstrumentedTickStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Tick, error) {
	start := time.Now()
	ticks, err := s.next.GetBySymbol(ctx, symbol)
	s.observe("tick_get_by_symbol", start, err)
	return ticks, err
}

func (s *InstrumentedTickStore) GetByTimeRange(ctx context.Context, symbol string, from, to int64) ([]*domain.Tick, error) {
	start := time.Now()
	ticks, err := s.next.GetByTimeRange(ctx, symbol, from, to)
	s.observe("tick_get_by_time_range", start, err)
	return ticks, err
}

// InstrumentedTradeStore records query metrics of a TradeStore.
type InstrumentedTradeStore struct {
	next TradeStore
	instrument
}

// NewInstrumentedTradeStore wraps next; database labels the metrics.
func NewInstrumentedTradeStore(next TradeStore, database string, m *observability.Metrics) *InstrumentedTradeStore {
	return &InstrumentedTradeStore{next: next, instrument: instrument{database, m}}
}

func (s *InstrumentedTradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	start := time.Now()
	err := s.next.Insert(ctx, t)
	s.observe("trade_insert", start, err)
	return err
}

func (s *InstrumentedTradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) error {
	start := time.Now()
	err := s.next.InsertBulk(ctx, trades)
	s.observe("trade_insert_bulk", start, err)
	return err
}

func (s *InstrumentedTradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	start := time.Now()
	t, err := s.next.GetByID(ctx, tradeID)
	s.observe("trade_get_by_id", start, err)
	return t, err
}

func (s *InstrumentedTradeStore) GetByRun(ctx context.Context, runID string) ([]*domain.Trade, error) {
	start := time.Now()
	trades, err := s.next.GetByRun(ctx, runID)
	s.observe("trade_get_by_run", start, err)
	return trades, err
}

// InstrumentedSignalStore records query metrics of a SignalStore.
type InstrumentedSignalStore struct {
	next SignalStore
	instrument
}

// NewInstrumentedSignalStore wraps next; database labels the metrics.
func NewInstrumentedSignalStore(next SignalStore, database string, m *observability.Metrics) *InstrumentedSignalStore {
	return &InstrumentedSignalStore{next: next, instrument: instrument{database, m}}
}

func (s *InstrumentedSignalStore) InsertBulk(ctx context.Context, signals []*domain.SignalRecord) error {
	start := time.Now()
	err := s.next.InsertBulk(ctx, signals)
	s.observe("signal_insert_bulk", start, err)
	return err
}

func (s *InstrumentedSignalStore) GetByRun(ctx context.Context, runID string) ([]*domain.SignalRecord, error) {
	start := time.Now()
	records, err := s.next.GetByRun(ctx, runID)
	s.observe("signal_get_by_run", start, err)
	return records, err
}

var (
	_ TickStore   = (*InstrumentedTickStore)(nil)
	_ TradeStore  = (*InstrumentedTradeStore)(nil)
	_ SignalStore = (*InstrumentedSignalStore)(nil)
)
