package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/backtest"
	"github.com/stratlab/backtest-engine/internal/marketdata"
	"github.com/stratlab/backtest-engine/internal/model"
	"github.com/stratlab/backtest-engine/internal/service"
	"github.com/stratlab/backtest-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a Service with in-memory store, static market data,
// and a chi router.
func newTestEnv(t *testing.T) (*store.MemoryStore, *marketdata.StaticProvider, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	provider := marketdata.NewStaticProvider()
	runner := backtest.NewRunner(provider, nil)
	svc := service.NewService(ms, runner)

	r := chi.NewRouter()
	r.Post("/api/v1/backtests", svc.RunBacktest)
	r.Get("/api/v1/backtests", svc.ListBacktests)
	r.Delete("/api/v1/backtests", svc.ClearBacktests)
	r.Post("/api/v1/backtests/compare", svc.CompareStrategies)
	r.Get("/api/v1/backtests/{backtestID}", svc.GetBacktest)
	r.Get("/api/v1/strategies", svc.ListStrategies)

	return ms, provider, r
}

// seedBars loads a short up-trending daily series for a symbol.
func seedBars(provider *marketdata.StaticProvider, symbol string) {
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	var bars []model.HistoricalBar
	opens := []float64{100, 101, 102, 103, 104}
	for i, o := range opens {
		bars = append(bars, model.HistoricalBar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      d(o),
			High:      d(o + 2),
			Low:       d(o - 1),
			Close:     d(o + 1),
			Volume:    1000,
		})
	}
	provider.SetBars(symbol, bars)
}

func post(t *testing.T, router chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRunBacktest_Success(t *testing.T) {
	ms, provider, router := newTestEnv(t)
	seedBars(provider, "AAPL")

	w := post(t, router, "/api/v1/backtests", service.RunRequest{
		StrategyName:   "basic",
		Symbol:         "AAPL",
		StartDate:      "2024-06-03",
		EndDate:        "2024-06-07",
		InitialCapital: d(10000),
		Parameters:     map[string]any{"quantity": 10, "side": "BUY"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result model.BacktestResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful run, got error %q", result.Error)
	}
	if result.BacktestID == "" {
		t.Fatal("expected non-empty backtest ID")
	}
	if len(result.EquityCurve) != 5 {
		t.Errorf("expected 5 equity points, got %d", len(result.EquityCurve))
	}

	// Result was persisted.
	stored, err := ms.GetResult(context.Background(), result.BacktestID)
	if err != nil {
		t.Fatalf("stored result lookup: %v", err)
	}
	if stored.StrategyName != "basic" {
		t.Errorf("unexpected stored result: %+v", stored)
	}
}

func TestRunBacktest_DomainFailureIs200(t *testing.T) {
	_, _, router := newTestEnv(t) // no bars seeded

	w := post(t, router, "/api/v1/backtests", service.RunRequest{
		StrategyName: "basic",
		Symbol:       "AAPL",
		StartDate:    "2024-06-03",
		EndDate:      "2024-06-07",
		Parameters:   map[string]any{"quantity": 10, "side": "BUY"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("domain failures are results, expected 200, got %d", w.Code)
	}

	var result model.BacktestResult
	json.Unmarshal(w.Body.Bytes(), &result)
	if result.Success {
		t.Fatal("expected failed result")
	}
	if result.Error != "No historical data available" {
		t.Errorf("unexpected error: %q", result.Error)
	}
}

func TestRunBacktest_BadRequests(t *testing.T) {
	_, provider, router := newTestEnv(t)
	seedBars(provider, "AAPL")

	tests := []struct {
		name string
		req  service.RunRequest
	}{
		{"missing strategy", service.RunRequest{Symbol: "AAPL", StartDate: "2024-06-03", EndDate: "2024-06-07"}},
		{"missing symbol", service.RunRequest{StrategyName: "basic", StartDate: "2024-06-03", EndDate: "2024-06-07"}},
		{"bad date", service.RunRequest{StrategyName: "basic", Symbol: "AAPL", StartDate: "June 3rd", EndDate: "2024-06-07"}},
		{"inverted range", service.RunRequest{StrategyName: "basic", Symbol: "AAPL", StartDate: "2024-06-07", EndDate: "2024-06-03"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := post(t, router, "/api/v1/backtests", tt.req); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetBacktest_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	if w := get(t, router, "/api/v1/backtests/no-such-id"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListAndClearBacktests(t *testing.T) {
	_, provider, router := newTestEnv(t)
	seedBars(provider, "AAPL")

	for i := 0; i < 3; i++ {
		post(t, router, "/api/v1/backtests", service.RunRequest{
			StrategyName:   "basic",
			Symbol:         "AAPL",
			StartDate:      "2024-06-03",
			EndDate:        "2024-06-07",
			InitialCapital: d(10000),
			Parameters:     map[string]any{"quantity": 1, "side": "BUY"},
		})
	}

	w := get(t, router, "/api/v1/backtests?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var results []model.BacktestResult
	json.Unmarshal(w.Body.Bytes(), &results)
	if len(results) != 2 {
		t.Fatalf("expected 2 results with limit, got %d", len(results))
	}

	req := httptest.NewRequest("DELETE", "/api/v1/backtests", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", rec.Code)
	}
	var cleared map[string]int64
	json.Unmarshal(rec.Body.Bytes(), &cleared)
	if cleared["cleared"] != 3 {
		t.Errorf("expected 3 cleared, got %d", cleared["cleared"])
	}

	w = get(t, router, "/api/v1/backtests")
	json.Unmarshal(w.Body.Bytes(), &results)
	if len(results) != 0 {
		t.Errorf("expected empty history after clear, got %d", len(results))
	}
}

func TestCompareStrategies(t *testing.T) {
	_, provider, router := newTestEnv(t)
	seedBars(provider, "AAPL")

	w := post(t, router, "/api/v1/backtests/compare", service.CompareRequest{
		StrategyNames:  []string{"basic", "highlow"},
		Symbol:         "AAPL",
		StartDate:      "2024-06-03",
		EndDate:        "2024-06-07",
		InitialCapital: d(10000),
		Parameters: map[string]map[string]any{
			"basic":   {"quantity": 10, "side": "BUY"},
			"highlow": {"quantity": 10, "low_threshold": 101, "high_threshold": 104},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var comparison model.ComparisonResult
	if err := json.Unmarshal(w.Body.Bytes(), &comparison); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(comparison.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(comparison.Results))
	}
	if comparison.BestStrategy == "" {
		t.Error("expected a best strategy")
	}
	if len(comparison.OverallRanking) != 2 {
		t.Errorf("expected 2 ranked strategies, got %v", comparison.OverallRanking)
	}
}

func TestCompareStrategies_RequiresNames(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := post(t, router, "/api/v1/backtests/compare", service.CompareRequest{
		Symbol:    "AAPL",
		StartDate: "2024-06-03",
		EndDate:   "2024-06-07",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListStrategies(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := get(t, router, "/api/v1/strategies")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string][]string
	json.Unmarshal(w.Body.Bytes(), &body)
	names := body["strategies"]
	if len(names) != 5 {
		t.Fatalf("expected 5 strategies, got %v", names)
	}
	want := map[string]bool{"basic": true, "ladder": true, "oscillating": true, "highlow": true, "oto_ladder": true}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected strategy %q", n)
		}
	}
}
