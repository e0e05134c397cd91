package ingestion

import (
	"context"
	"errors"
	"testing"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/replay"
	"orderflow-lab/internal/storage"
	"orderflow-lab/internal/storage/memory"
)

// orderValidatingTickStore wraps a TickStore and validates ordering in InsertBulk.
// Returns ErrInvalidOrdering if ticks are not properly ordered.
type orderValidatingTickStore struct {
	storage.TickStore
	batches int
}

func (s *orderValidatingTickStore) InsertBulk(ctx context.Context, ticks []*domain.Tick) error {
	if err := replay.ValidateOrdering(ticks); err != nil {
		return err
	}
	s.batches++
	return s.TickStore.InsertBulk(ctx, ticks)
}

func mkTick(ts, seq int64) *domain.Tick {
	return &domain.Tick{Symbol: "ES", TimestampMs: ts, Seq: seq, Price: 100, Volume: 1, Side: domain.SideBid}
}

func TestManager_IngestTicks_Ordering(t *testing.T) {
	// Manager must sort these before InsertBulk, otherwise validating store fails
	ticks := []*domain.Tick{mkTick(3000, 0), mkTick(1000, 0), mkTick(2000, 1), mkTick(2000, 0)}

	store := &orderValidatingTickStore{TickStore: memory.NewTickStore()}
	mgr := NewManager(ManagerOptions{
		Source: NewSliceSource(ticks),
		Store:  store,
	})

	count, err := mgr.IngestTicks(context.Background(), "ES", 0, 10_000)
	if err != nil {
		t.Fatalf("IngestTicks failed: %v (Manager must sort before InsertBulk)", err)
	}
	if count != 4 {
		t.Errorf("Expected 4 ticks ingested, got %d", count)
	}
}

func TestManager_IngestTicks_DuplicateRejection(t *testing.T) {
	store := memory.NewTickStore()
	mgr := NewManager(ManagerOptions{
		Source: NewSliceSource([]*domain.Tick{mkTick(1000, 0)}),
		Store:  store,
	})

	ctx := context.Background()
	if _, err := mgr.IngestTicks(ctx, "ES", 0, 10_000); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}
	_, err := mgr.IngestTicks(ctx, "ES", 0, 10_000)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestManager_Store_DropsMalformedAndBatches(t *testing.T) {
	bad := mkTick(1500, 0)
	bad.Volume = 0
	ticks := []*domain.Tick{mkTick(1000, 0), bad, mkTick(2000, 0), mkTick(3000, 0), mkTick(4000, 0)}

	store := &orderValidatingTickStore{TickStore: memory.NewTickStore()}
	mgr := NewManager(ManagerOptions{Store: store, BatchSize: 2})

	count, err := mgr.Store(context.Background(), ticks)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 stored ticks, got %d", count)
	}
	if store.batches != 2 {
		t.Errorf("expected 2 batches, got %d", store.batches)
	}
}

func TestManager_NilSource(t *testing.T) {
	mgr := NewManager(ManagerOptions{Store: memory.NewTickStore()})
	count, err := mgr.IngestTicks(context.Background(), "ES", 0, 1)
	if err != nil || count != 0 {
		t.Errorf("expected no-op, got count=%d err=%v", count, err)
	}
}

func TestSliceSource_FiltersRange(t *testing.T) {
	other := mkTick(1500, 0)
	other.Symbol = "NQ"
	src := NewSliceSource([]*domain.Tick{mkTick(1000, 0), other, mkTick(2000, 0), mkTick(3000, 0)})

	got, err := src.Fetch(context.Background(), "ES", 1000, 2000)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 ticks, got %d", len(got))
	}
}
