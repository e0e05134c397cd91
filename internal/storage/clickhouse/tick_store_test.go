package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

func createTestTick(symbol string, ts, seq int64, price float64, side domain.Side) *domain.Tick {
	return &domain.Tick{
		Symbol:      symbol,
		TimestampMs: ts,
		Seq:         seq,
		Price:       price,
		Volume:      3,
		Side:        side,
	}
}

func TestTickStore_InsertAndGetBySymbol(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTickStore(conn)

	ticks := []*domain.Tick{
		createTestTick("NQ", 2000, 0, 18000.50, domain.SideAsk),
		createTestTick("NQ", 1000, 1, 18000.25, domain.SideBid),
		createTestTick("NQ", 1000, 0, 18000.00, domain.SideBid),
		createTestTick("ES", 1500, 0, 5000.25, domain.SideAsk),
	}
	require.NoError(t, store.InsertBulk(ctx, ticks))

	got, err := store.GetBySymbol(ctx, "NQ")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, int64(0), got[0].Seq)
	assert.Equal(t, int64(1), got[1].Seq)
	assert.Equal(t, int64(2000), got[2].TimestampMs)
	assert.Equal(t, domain.SideAsk, got[2].Side)
	assert.InDelta(t, 18000.50, got[2].Price, 0.0001)
	assert.Equal(t, int64(3), got[2].Volume)
}

func TestTickStore_GetByTimeRange_Inclusive(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTickStore(conn)

	var ticks []*domain.Tick
	for i := int64(0); i < 5; i++ {
		ticks = append(ticks, createTestTick("NQ", 1000*(i+1), 0, 18000, domain.SideBid))
	}
	require.NoError(t, store.InsertBulk(ctx, ticks))

	got, err := store.GetByTimeRange(ctx, "NQ", 2000, 4000)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2000), got[0].TimestampMs)
	assert.Equal(t, int64(4000), got[2].TimestampMs)
}

func TestTickStore_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTickStore(conn)

	require.NoError(t, store.InsertBulk(ctx, []*domain.Tick{
		createTestTick("NQ", 1000, 0, 18000, domain.SideBid),
	}))

	// Against stored rows
	err := store.InsertBulk(ctx, []*domain.Tick{
		createTestTick("NQ", 2000, 0, 18000, domain.SideBid),
		createTestTick("NQ", 1000, 0, 18000, domain.SideBid),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Within one batch
	err = store.InsertBulk(ctx, []*domain.Tick{
		createTestTick("NQ", 3000, 0, 18000, domain.SideBid),
		createTestTick("NQ", 3000, 0, 18000, domain.SideAsk),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetBySymbol(ctx, "NQ")
	require.NoError(t, err)
	assert.Len(t, got, 1, "failed batches must not be partially written")
}
