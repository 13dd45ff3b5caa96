package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

// HTTPProvider fetches bars and quotes from a market-data HTTP API.
//
// Expected endpoints:
//
//	GET {base}/v1/bars?symbol=S&interval=1day&start=...&end=...
//	GET {base}/v1/quotes/{symbol}
//
// Timestamps on the wire are ISO-8601 strings; OHLCV fields are numeric.
// Malformed rows are skipped rather than failing the whole response.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider against the given base URL. apiKey
// may be empty for unauthenticated endpoints.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues a request with the API key header attached when configured.
func (p *HTTPProvider) do(req *http.Request) (*http.Response, error) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return p.client.Do(req)
}

// barRow is the wire format for one bar.
type barRow struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

func (p *HTTPProvider) HistoricalBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.HistoricalBar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/v1/bars?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build bars request: %w", err)
	}

	resp, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bars for %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var rows []barRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		// Malformed body is treated as no data.
		return nil, nil
	}

	bars := make([]model.HistoricalBar, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			continue // skip malformed rows
		}
		bars = append(bars, model.HistoricalBar{
			Timestamp: ts,
			Open:      decimal.NewFromFloat(r.Open),
			High:      decimal.NewFromFloat(r.High),
			Low:       decimal.NewFromFloat(r.Low),
			Close:     decimal.NewFromFloat(r.Close),
			Volume:    r.Volume,
		})
	}
	return bars, nil
}

func (p *HTTPProvider) Quote(ctx context.Context, symbol string) (model.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/v1/quotes/"+url.PathEscape(symbol), nil)
	if err != nil {
		return model.Quote{}, fmt.Errorf("build quote request: %w", err)
	}

	resp, err := p.do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch quote for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("fetch quote for %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var row struct {
		Symbol    string  `json:"symbol"`
		LastPrice float64 `json:"last_price"`
		Timestamp string  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		return model.Quote{}, fmt.Errorf("decode quote for %s: %w", symbol, err)
	}

	ts, err := time.Parse(time.RFC3339, row.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	return model.Quote{
		Symbol:    row.Symbol,
		LastPrice: decimal.NewFromFloat(row.LastPrice),
		Timestamp: ts,
	}, nil
}
