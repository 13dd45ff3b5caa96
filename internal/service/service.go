// Package service provides the HTTP handlers for running backtests,
// comparing strategies, and querying stored results.
//
// All monetary values use shopspring/decimal — never float64 for money.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/backtest"
	"github.com/stratlab/backtest-engine/internal/model"
	"github.com/stratlab/backtest-engine/internal/store"
	"github.com/stratlab/backtest-engine/internal/strategy"
)

// defaultInitialCapital is used when a request omits starting capital.
var defaultInitialCapital = decimal.NewFromInt(10000)

// Service handles backtest operations over HTTP. Runs execute
// synchronously within the request; each run owns its own portfolio, so
// no request-level locking is needed.
type Service struct {
	store  store.Store
	runner *backtest.Runner
}

// NewService creates a new backtest service.
func NewService(st store.Store, runner *backtest.Runner) *Service {
	return &Service{store: st, runner: runner}
}

// --- Request/Response types ---

// RunRequest is the JSON body for POST /api/v1/backtests.
type RunRequest struct {
	StrategyName   string          `json:"strategy_name"`
	Symbol         string          `json:"symbol"`
	StartDate      string          `json:"start_date"` // YYYY-MM-DD
	EndDate        string          `json:"end_date"`   // YYYY-MM-DD
	Interval       string          `json:"interval"`   // default "1day"
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Parameters     map[string]any  `json:"parameters"`
}

// CompareRequest is the JSON body for POST /api/v1/backtests/compare.
type CompareRequest struct {
	StrategyNames  []string                  `json:"strategy_names"`
	Symbol         string                    `json:"symbol"`
	StartDate      string                    `json:"start_date"`
	EndDate        string                    `json:"end_date"`
	Interval       string                    `json:"interval"`
	InitialCapital decimal.Decimal           `json:"initial_capital"`
	Parameters     map[string]map[string]any `json:"parameters"` // per strategy
}

// --- HTTP Handlers ---

// RunBacktest handles POST /api/v1/backtests
// Runs a single backtest synchronously and persists the result. Domain
// failures (unknown strategy, no data, bad parameters) come back as
// 200 with success=false; only malformed requests get 4xx.
func (s *Service) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.StrategyName == "" {
		writeError(w, "strategy_name is required", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}
	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	capital := req.InitialCapital
	if capital.LessThanOrEqual(decimal.Zero) {
		capital = defaultInitialCapital
	}

	result := s.runner.Run(r.Context(), backtest.Request{
		StrategyName:   req.StrategyName,
		Symbol:         req.Symbol,
		StartDate:      start,
		EndDate:        end,
		Interval:       req.Interval,
		InitialCapital: capital,
		Params:         strategy.Params(req.Parameters),
	})

	s.save(r, result)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// CompareStrategies handles POST /api/v1/backtests/compare
// Runs each named strategy over the same symbol and date range with an
// independent portfolio, then ranks the results.
func (s *Service) CompareStrategies(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.StrategyNames) == 0 {
		writeError(w, "strategy_names is required", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}
	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	capital := req.InitialCapital
	if capital.LessThanOrEqual(decimal.Zero) {
		capital = defaultInitialCapital
	}

	params := make(map[string]strategy.Params, len(req.Parameters))
	for name, p := range req.Parameters {
		params[name] = strategy.Params(p)
	}

	comparison := s.runner.Compare(r.Context(), backtest.CompareRequest{
		StrategyNames:  req.StrategyNames,
		Symbol:         req.Symbol,
		StartDate:      start,
		EndDate:        end,
		Interval:       req.Interval,
		InitialCapital: capital,
		Params:         params,
	})

	for _, result := range comparison.Results {
		s.save(r, result)
	}

	slog.Info("strategy comparison completed",
		"symbol", req.Symbol,
		"strategies", len(req.StrategyNames),
		"best", comparison.BestStrategy,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(comparison)
}

// ListBacktests handles GET /api/v1/backtests
// Returns stored results newest first, optionally capped by ?limit=N.
func (s *Service) ListBacktests(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	results, err := s.store.ListResults(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to list backtest results", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []model.BacktestResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetBacktest handles GET /api/v1/backtests/{backtestID}
func (s *Service) GetBacktest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "backtestID")

	result, err := s.store.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "backtest result not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to load backtest result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ClearBacktests handles DELETE /api/v1/backtests
func (s *Service) ClearBacktests(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.ClearResults(r.Context())
	if err != nil {
		writeError(w, "failed to clear backtest results", http.StatusInternalServerError)
		return
	}

	slog.Info("backtest history cleared", "removed", n)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"cleared": n})
}

// ListStrategies handles GET /api/v1/strategies
func (s *Service) ListStrategies(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{"strategies": strategy.Names()})
}

// save persists a completed result; persistence failures are logged,
// never surfaced to the caller.
func (s *Service) save(r *http.Request, result *model.BacktestResult) {
	if err := s.store.SaveResult(r.Context(), result); err != nil {
		slog.Error("failed to persist backtest result",
			"id", result.BacktestID, "err", err)
	}
}

// parseDateRange parses YYYY-MM-DD (or RFC3339) start and end dates and
// validates their ordering.
func parseDateRange(startS, endS string) (time.Time, time.Time, error) {
	start, err := parseDate(startS)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("start_date must be YYYY-MM-DD")
	}
	end, err := parseDate(endS)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("end_date must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end_date must not precede start_date")
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
