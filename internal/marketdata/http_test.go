package marketdata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/marketdata"
	"github.com/stratlab/backtest-engine/internal/model"
)

func TestHTTPProvider_HistoricalBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/bars" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "AAPL" {
			t.Errorf("unexpected symbol %s", r.URL.Query().Get("symbol"))
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		// Second row has a malformed timestamp and must be skipped.
		w.Write([]byte(`[
			{"timestamp":"2024-06-03T00:00:00Z","open":100,"high":102,"low":99,"close":101,"volume":1000},
			{"timestamp":"not-a-time","open":1,"high":1,"low":1,"close":1,"volume":1},
			{"timestamp":"2024-06-04T00:00:00Z","open":101,"high":103,"low":100,"close":102,"volume":1100}
		]`))
	}))
	defer srv.Close()

	p := marketdata.NewHTTPProvider(srv.URL, "test-key")
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)

	bars, err := p.HistoricalBars(context.Background(), "AAPL", "1day", start, end)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars (malformed row skipped), got %d", len(bars))
	}
	if !bars[0].Open.Equal(decimal.NewFromInt(100)) || bars[0].Volume != 1000 {
		t.Errorf("unexpected first bar: %+v", bars[0])
	}
}

func TestHTTPProvider_MalformedBodyMeansNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := marketdata.NewHTTPProvider(srv.URL, "")
	bars, err := p.HistoricalBars(context.Background(), "AAPL", "1day", time.Now().AddDate(0, 0, -5), time.Now())
	if err != nil {
		t.Fatalf("malformed body should read as no data, got error %v", err)
	}
	if len(bars) != 0 {
		t.Fatalf("expected no bars, got %d", len(bars))
	}
}

func TestHTTPProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := marketdata.NewHTTPProvider(srv.URL, "")
	if _, err := p.HistoricalBars(context.Background(), "AAPL", "1day", time.Now().AddDate(0, 0, -5), time.Now()); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestHTTPProvider_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quotes/AAPL" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"symbol":"AAPL","last_price":187.45,"timestamp":"2024-06-03T15:30:00Z"}`))
	}))
	defer srv.Close()

	p := marketdata.NewHTTPProvider(srv.URL, "")
	q, err := p.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Symbol != "AAPL" || !q.LastPrice.Equal(decimal.NewFromFloat(187.45)) {
		t.Errorf("unexpected quote: %+v", q)
	}
}

func TestStaticProvider_RangeFilter(t *testing.T) {
	p := marketdata.NewStaticProvider()
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	series := make([]model.HistoricalBar, 0, 5)
	for i := 0; i < 5; i++ {
		series = append(series, model.HistoricalBar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      decimal.NewFromInt(100),
			High:      decimal.NewFromInt(101),
			Low:       decimal.NewFromInt(99),
			Close:     decimal.NewFromInt(100),
		})
	}
	p.SetBars("AAPL", series)

	bars, err := p.HistoricalBars(context.Background(), "AAPL", "1day", base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars inside the window, got %d", len(bars))
	}
}
