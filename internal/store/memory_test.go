package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
	"github.com/stratlab/backtest-engine/internal/store"
)

func result(id string, createdAt time.Time) *model.BacktestResult {
	return &model.BacktestResult{
		BacktestID:     id,
		Success:        true,
		StrategyName:   "basic",
		Symbol:         "AAPL",
		InitialCapital: decimal.NewFromInt(10000),
		FinalCapital:   decimal.NewFromInt(10030),
		TotalReturn:    0.3,
		Metrics:        model.Metrics{"win_rate": 50},
		CreatedAt:      createdAt,
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	r := result("bt-1", time.Now().UTC())
	if err := ms.SaveResult(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := ms.GetResult(ctx, "bt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BacktestID != "bt-1" || !got.FinalCapital.Equal(decimal.NewFromInt(10030)) {
		t.Errorf("unexpected result: %+v", got)
	}

	// Stored copy is isolated from caller mutation.
	r.Symbol = "MSFT"
	got, _ = ms.GetResult(ctx, "bt-1")
	if got.Symbol != "AAPL" {
		t.Error("store must hold a copy, not the caller's pointer")
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	ms := store.NewMemoryStore()

	_, err := ms.GetResult(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"bt-a", "bt-b", "bt-c"} {
		if err := ms.SaveResult(ctx, result(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	results, err := ms.ListResults(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].BacktestID != "bt-c" || results[2].BacktestID != "bt-a" {
		t.Errorf("expected newest first, got %s..%s", results[0].BacktestID, results[2].BacktestID)
	}

	limited, _ := ms.ListResults(ctx, 2)
	if len(limited) != 2 || limited[0].BacktestID != "bt-c" {
		t.Errorf("limit should keep the newest entries, got %v", limited)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.SaveResult(ctx, result("bt-1", time.Now().UTC()))
	ms.SaveResult(ctx, result("bt-2", time.Now().UTC()))

	n, err := ms.ClearResults(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}

	results, _ := ms.ListResults(ctx, 0)
	if len(results) != 0 {
		t.Errorf("expected empty store after clear, got %d", len(results))
	}
}
