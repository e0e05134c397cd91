package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

func createTestTrade(runID, tradeID string, entryTimeMs int64) *domain.Trade {
	return &domain.Trade{
		TradeID:         tradeID,
		RunID:           runID,
		Symbol:          "NQ",
		Mode:            domain.ModeCausal,
		Side:            domain.PositionLong,
		SignalKind:      domain.SignalBidAbsorption,
		SignalTimeMs:    entryTimeMs,
		EntryTimeMs:     entryTimeMs,
		EntryPrice:      18000.25,
		TakeProfitPrice: 18002.25,
		StopLossPrice:   17998.25,
		ExitTimeMs:      entryTimeMs + 60000,
		ExitPrice:       18002.25,
		ExitReason:      domain.ExitReasonTarget,
		Contracts:       1,
		ProfitPoints:    2,
		ProfitDollars:   40,
	}
}

func TestTradeStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	trade := createTestTrade("run-1", "trade-001", 1000)

	err := store.Insert(ctx, trade)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "trade-001")
	require.NoError(t, err)

	assert.Equal(t, trade.TradeID, retrieved.TradeID)
	assert.Equal(t, trade.RunID, retrieved.RunID)
	assert.Equal(t, trade.Symbol, retrieved.Symbol)
	assert.Equal(t, trade.Mode, retrieved.Mode)
	assert.Equal(t, trade.Side, retrieved.Side)
	assert.Equal(t, trade.SignalKind, retrieved.SignalKind)
	assert.Equal(t, trade.EntryTimeMs, retrieved.EntryTimeMs)
	assert.InDelta(t, trade.EntryPrice, retrieved.EntryPrice, 0.0001)
	assert.InDelta(t, trade.TakeProfitPrice, retrieved.TakeProfitPrice, 0.0001)
	assert.InDelta(t, trade.StopLossPrice, retrieved.StopLossPrice, 0.0001)
	assert.Equal(t, trade.ExitTimeMs, retrieved.ExitTimeMs)
	assert.InDelta(t, trade.ExitPrice, retrieved.ExitPrice, 0.0001)
	assert.Equal(t, trade.ExitReason, retrieved.ExitReason)
	assert.Equal(t, trade.Contracts, retrieved.Contracts)
	assert.InDelta(t, trade.ProfitPoints, retrieved.ProfitPoints, 0.0001)
	assert.InDelta(t, trade.ProfitDollars, retrieved.ProfitDollars, 0.0001)
}

func TestTradeStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	trade := createTestTrade("run-1", "trade-dup", 1000)
	require.NoError(t, store.Insert(ctx, trade))

	err := store.Insert(ctx, trade)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTradeStore_GetByID_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeStore_InsertBulk_Atomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	require.NoError(t, store.Insert(ctx, createTestTrade("run-1", "trade-existing", 500)))

	batch := []*domain.Trade{
		createTestTrade("run-1", "trade-new", 1000),
		createTestTrade("run-1", "trade-existing", 500),
	}
	err := store.InsertBulk(ctx, batch)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Nothing from the failed batch is visible.
	_, err = store.GetByID(ctx, "trade-new")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeStore_GetByRun_Ordered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	batch := []*domain.Trade{
		createTestTrade("run-1", "trade-c", 3000),
		createTestTrade("run-1", "trade-b", 1000),
		createTestTrade("run-1", "trade-a", 1000),
		createTestTrade("run-2", "trade-x", 2000),
	}
	require.NoError(t, store.InsertBulk(ctx, batch))

	trades, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 3)

	assert.Equal(t, "trade-a", trades[0].TradeID)
	assert.Equal(t, "trade-b", trades[1].TradeID)
	assert.Equal(t, "trade-c", trades[2].TradeID)
}

func TestTradeStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)

	err := store.Insert(context.Background(), &domain.Trade{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
