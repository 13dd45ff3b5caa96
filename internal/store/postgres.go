package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary values are stored as NUMERIC for exact decimal precision;
// trades, equity curves, and metric maps are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the results table if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS backtest_results (
			backtest_id     TEXT PRIMARY KEY,
			success         BOOLEAN NOT NULL,
			error           TEXT NOT NULL DEFAULT '',
			strategy_name   TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			start_date      TIMESTAMPTZ NOT NULL,
			end_date        TIMESTAMPTZ NOT NULL,
			initial_capital NUMERIC NOT NULL,
			final_capital   NUMERIC NOT NULL,
			total_return    DOUBLE PRECISION NOT NULL,
			max_drawdown    DOUBLE PRECISION NOT NULL,
			sharpe_ratio    DOUBLE PRECISION NOT NULL,
			metrics         JSONB NOT NULL DEFAULT '{}',
			trades          JSONB NOT NULL DEFAULT '[]',
			equity_curve    JSONB NOT NULL DEFAULT '[]',
			created_at      TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (s *PostgresStore) SaveResult(ctx context.Context, r *model.BacktestResult) error {
	metricsJSON, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	tradesJSON, err := json.Marshal(r.Trades)
	if err != nil {
		return fmt.Errorf("marshal trades: %w", err)
	}
	equityJSON, err := json.Marshal(r.EquityCurve)
	if err != nil {
		return fmt.Errorf("marshal equity curve: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO backtest_results
		   (backtest_id, success, error, strategy_name, symbol,
		    start_date, end_date, initial_capital, final_capital,
		    total_return, max_drawdown, sharpe_ratio,
		    metrics, trades, equity_curve, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC,
		         $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (backtest_id) DO NOTHING`,
		r.BacktestID, r.Success, r.Error, r.StrategyName, r.Symbol,
		r.StartDate, r.EndDate,
		r.InitialCapital.String(), r.FinalCapital.String(),
		r.TotalReturn, r.MaxDrawdown, r.SharpeRatio,
		metricsJSON, tradesJSON, equityJSON, r.CreatedAt,
	)
	return err
}

const resultColumns = `backtest_id, success, error, strategy_name, symbol,
	        start_date, end_date,
	        initial_capital::TEXT, final_capital::TEXT,
	        total_return, max_drawdown, sharpe_ratio,
	        metrics::TEXT, trades::TEXT, equity_curve::TEXT, created_at`

func (s *PostgresStore) GetResult(ctx context.Context, id string) (*model.BacktestResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM backtest_results WHERE backtest_id = $1`, id)

	r, err := scanResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get backtest result %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, limit int) ([]model.BacktestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM backtest_results ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.BacktestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) ClearResults(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM backtest_results`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// scanResult reads one result row, decoding NUMERIC and JSONB columns.
func scanResult(row pgx.Row) (*model.BacktestResult, error) {
	var (
		r                    model.BacktestResult
		initialS, finalS     string
		metricsS, tradesS    string
		equityS              string
	)

	err := row.Scan(&r.BacktestID, &r.Success, &r.Error, &r.StrategyName, &r.Symbol,
		&r.StartDate, &r.EndDate,
		&initialS, &finalS,
		&r.TotalReturn, &r.MaxDrawdown, &r.SharpeRatio,
		&metricsS, &tradesS, &equityS, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.InitialCapital, _ = decimal.NewFromString(initialS)
	r.FinalCapital, _ = decimal.NewFromString(finalS)

	if err := json.Unmarshal([]byte(metricsS), &r.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(tradesS), &r.Trades); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	if err := json.Unmarshal([]byte(equityS), &r.EquityCurve); err != nil {
		return nil, fmt.Errorf("decode equity curve: %w", err)
	}
	return &r, nil
}
