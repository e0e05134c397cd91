package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

func createTestSignal(runID string, idx int, ts int64) *domain.SignalRecord {
	return &domain.SignalRecord{
		RunID: runID,
		Index: idx,
		CausalSignal: domain.CausalSignal{
			Symbol:          "NQ",
			TimestampMs:     ts + 60000,
			TriggerPrice:    18000.5,
			Kind:            domain.SignalAskAbsorption,
			Side:            domain.SideAsk,
			Mode:            domain.ModeCausal,
			DetectionTimeMs: ts,
			DetectionPrice:  18000.25,
			ZScore:          2.4,
			BidDensity:      3,
			AskDensity:      7,
			NetDensity:      4,
		},
	}
}

func TestSignalStore_InsertBulkAndGetByRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	batch := []*domain.SignalRecord{
		createTestSignal("run-1", 1, 2000),
		createTestSignal("run-1", 0, 1000),
		createTestSignal("run-2", 0, 1000),
	}
	require.NoError(t, store.InsertBulk(ctx, batch))

	records, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 0, records[0].Index)
	assert.Equal(t, 1, records[1].Index)

	r := records[0]
	assert.Equal(t, domain.SignalAskAbsorption, r.Kind)
	assert.Equal(t, domain.SideAsk, r.Side)
	assert.Equal(t, domain.ModeCausal, r.Mode)
	assert.Equal(t, int64(61000), r.TimestampMs)
	assert.Equal(t, int64(1000), r.DetectionTimeMs)
	assert.InDelta(t, 18000.5, r.TriggerPrice, 0.0001)
	assert.InDelta(t, 2.4, r.ZScore, 0.0001)
	assert.Equal(t, 3, r.BidDensity)
	assert.Equal(t, 7, r.AskDensity)
	assert.Equal(t, 4, r.NetDensity)
}

func TestSignalStore_DuplicateFailsBatch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.SignalRecord{createTestSignal("run-1", 0, 1000)}))

	err := store.InsertBulk(ctx, []*domain.SignalRecord{
		createTestSignal("run-1", 1, 2000),
		createTestSignal("run-1", 0, 1000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	records, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSignalStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalStore(pool)

	bad := createTestSignal("run-1", 0, 1000)
	bad.Kind = "UNKNOWN"
	err := store.InsertBulk(context.Background(), []*domain.SignalRecord{bad})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
