package memory

import (
	"context"
	"errors"
	"testing"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/storage"
)

func TestTradeStore_InsertAndGet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := &domain.Trade{
		TradeID:       "trade1",
		RunID:         "run1",
		Side:          domain.PositionLong,
		EntryTimeMs:   1000,
		EntryPrice:    100,
		ExitPrice:     102,
		ExitReason:    domain.ExitReasonTarget,
		ProfitPoints:  2,
		ProfitDollars: 40,
	}

	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "trade1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ProfitDollars != 40 || got.ExitReason != domain.ExitReasonTarget {
		t.Errorf("unexpected trade: %+v", got)
	}
}

func TestTradeStore_DuplicateKey(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := &domain.Trade{TradeID: "trade1", RunID: "run1"}
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	if err := store.Insert(ctx, trade); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeStore_NotFound(t *testing.T) {
	store := NewTradeStore()

	if _, err := store.GetByID(context.Background(), "nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTradeStore_InsertBulkAndGetByRun(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trades := []*domain.Trade{
		{TradeID: "t3", RunID: "run1", EntryTimeMs: 3000},
		{TradeID: "t1", RunID: "run1", EntryTimeMs: 1000},
		{TradeID: "t2", RunID: "run1", EntryTimeMs: 1000},
		{TradeID: "t4", RunID: "run2", EntryTimeMs: 500},
	}
	if err := store.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(got))
	}
	if got[0].TradeID != "t1" || got[1].TradeID != "t2" || got[2].TradeID != "t3" {
		t.Errorf("unexpected order: %s %s %s", got[0].TradeID, got[1].TradeID, got[2].TradeID)
	}
}

func TestTradeStore_InsertBulkIntraBatchDuplicate(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trades := []*domain.Trade{
		{TradeID: "t1", RunID: "run1"},
		{TradeID: "t1", RunID: "run1"},
	}
	if err := store.InsertBulk(ctx, trades); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByID(ctx, "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("failed batch must not be partially applied")
	}
}
