package memory

import (
	"context"
	"errors"
	"testing"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

func signalRecord(runID string, idx int) *domain.SignalRecord {
	return &domain.SignalRecord{
		RunID: runID,
		Index: idx,
		CausalSignal: domain.CausalSignal{
			TimestampMs: int64(idx) * 1000,
			Kind:        domain.SignalBidAbsorption,
			Side:        domain.SideBid,
			Mode:        domain.ModeCausal,
		},
	}
}

func TestSignalStore_InsertBulkAndGetByRun(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	batch := []*domain.SignalRecord{signalRecord("run1", 2), signalRecord("run1", 0), signalRecord("run2", 0)}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(got) != 2 || got[0].Index != 0 || got[1].Index != 2 {
		t.Errorf("unexpected signals: %+v", got)
	}
}

func TestSignalStore_Duplicate(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.SignalRecord{signalRecord("run1", 0)}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	err := store.InsertBulk(ctx, []*domain.SignalRecord{signalRecord("run1", 1), signalRecord("run1", 0)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	got, _ := store.GetByRun(ctx, "run1")
	if len(got) != 1 {
		t.Errorf("failed batch must not be partially applied, got %d", len(got))
	}
}

func TestSignalStore_InvalidInput(t *testing.T) {
	store := NewSignalStore()
	rec := signalRecord("run1", 0)
	rec.Mode = "UNKNOWN"
	if err := store.InsertBulk(context.Background(), []*domain.SignalRecord{rec}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
