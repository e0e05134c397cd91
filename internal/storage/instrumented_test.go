package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/observability"
	"orderflow-lab/internal/storage"
	"orderflow-lab/internal/storage/memory"
)

// sampleCounts returns histogram sample counts and error counts by operation.
func sampleCounts(t *testing.T, reg *prometheus.Registry) (map[string]uint64, map[string]float64) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	samples := make(map[string]uint64)
	errs := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var op string
			for _, l := range m.GetLabel() {
				if l.GetName() == "operation" {
					op = l.GetValue()
				}
			}
			switch mf.GetName() {
			case "test_database_query_duration_seconds":
				samples[op] = m.GetHistogram().GetSampleCount()
			case "test_database_query_errors_total":
				errs[op] = m.GetCounter().GetValue()
			}
		}
	}
	return samples, errs
}

func TestInstrumentedTradeStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)
	store := storage.NewInstrumentedTradeStore(memory.NewTradeStore(), "memory", m)
	ctx := context.Background()

	trade := &domain.Trade{TradeID: "t1", RunID: "run-1"}
	require.NoError(t, store.Insert(ctx, trade))
	assert.ErrorIs(t, store.Insert(ctx, trade), storage.ErrDuplicateKey)

	trades, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	_, err = store.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	samples, errs := sampleCounts(t, reg)
	assert.Equal(t, uint64(2), samples["trade_insert"])
	assert.Equal(t, uint64(1), samples["trade_get_by_run"])
	assert.Equal(t, float64(1), errs["trade_insert"])
	assert.Equal(t, float64(1), errs["trade_get_by_id"])
}

func TestInstrumentedTickStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)
	store := storage.NewInstrumentedTickStore(memory.NewTickStore(), "memory", m)
	ctx := context.Background()

	ticks := []*domain.Tick{
		{Symbol: "ES", TimestampMs: 1000, Price: 5000, Volume: 1, Side: domain.SideBid},
		{Symbol: "ES", TimestampMs: 2000, Price: 5000.25, Volume: 2, Side: domain.SideAsk},
	}
	require.NoError(t, store.InsertBulk(ctx, ticks))

	got, err := store.GetByTimeRange(ctx, "ES", 1500, 2500)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	all, err := store.GetBySymbol(ctx, "ES")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	samples, errs := sampleCounts(t, reg)
	assert.Equal(t, uint64(1), samples["tick_insert_bulk"])
	assert.Equal(t, uint64(1), samples["tick_get_by_time_range"])
	assert.Equal(t, uint64(1), samples["tick_get_by_symbol"])
	assert.Empty(t, errs)
}

func TestInstrumentedSignalStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)
	store := storage.NewInstrumentedSignalStore(memory.NewSignalStore(), "memory", m)
	ctx := context.Background()

	rec := &domain.SignalRecord{RunID: "run-1", Index: 0, CausalSignal: domain.CausalSignal{
		Symbol: "ES", Kind: domain.SignalBidAbsorption, Side: domain.SideBid, Mode: domain.ModeCausal,
	}}
	require.NoError(t, store.InsertBulk(ctx, []*domain.SignalRecord{rec}))

	records, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	samples, _ := sampleCounts(t, reg)
	assert.Equal(t, uint64(1), samples["signal_insert_bulk"])
	assert.Equal(t, uint64(1), samples["signal_get_by_run"])
}
