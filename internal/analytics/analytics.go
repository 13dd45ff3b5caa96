// Package analytics computes performance metrics from a simulation's
// trade list and equity curve: FIFO-matched realized P&L, win rate,
// profit factor, expectancy, max drawdown, and Sharpe ratio.
//
// P&L accumulation uses decimal; ratios and statistical metrics are
// float64, converted at the boundary the same way the ledger math stays
// decimal until statistics begin.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

// Annualization constants for the Sharpe ratio: a 2%/year risk-free
// rate over 252 trading days.
const (
	annualRiskFree = 0.02
	tradingDays    = 252
)

// Report is the computed performance summary for one backtest.
type Report struct {
	MaxDrawdown float64 // percent, peak-to-trough
	SharpeRatio float64
	Metrics     model.Metrics
}

// buyLot is one open FIFO lot awaiting sell matching.
type buyLot struct {
	price     decimal.Decimal
	remaining int64
}

// Analyze computes the full performance report. Empty inputs yield a
// zeroed report rather than an error.
func Analyze(trades []model.Fill, equityCurve []model.EquityPoint) Report {
	report := Report{Metrics: model.Metrics{
		"win_rate":       0,
		"average_win":    0,
		"average_loss":   0,
		"profit_factor":  0,
		"expectancy":     0,
		"total_trades":   0,
		"winning_trades": 0,
		"losing_trades":  0,
	}}

	if len(trades) == 0 && len(equityCurve) == 0 {
		return report
	}

	profits, losses := matchFIFO(trades)

	wins := len(profits)
	losers := len(losses)
	total := wins + losers

	var winRate, avgWin, avgLoss float64
	if total > 0 {
		winRate = float64(wins) / float64(total)
	}

	grossProfit := decimal.Zero
	for _, p := range profits {
		grossProfit = grossProfit.Add(p)
	}
	grossLoss := decimal.Zero
	for _, l := range losses {
		grossLoss = grossLoss.Add(l)
	}

	if wins > 0 {
		avgWin = grossProfit.InexactFloat64() / float64(wins)
	}
	if losers > 0 {
		avgLoss = grossLoss.InexactFloat64() / float64(losers)
	}

	// Profit factor: gross profit over |gross loss|; +Inf when there are
	// profits but no losses.
	var profitFactor float64
	gp := grossProfit.InexactFloat64()
	gl := math.Abs(grossLoss.InexactFloat64())
	switch {
	case gl > 0:
		profitFactor = gp / gl
	case gp > 0:
		profitFactor = math.Inf(1)
	}

	var expectancy float64
	if total > 0 {
		expectancy = winRate*avgWin - (1-winRate)*math.Abs(avgLoss)
	}

	report.MaxDrawdown = MaxDrawdown(equityCurve)
	report.SharpeRatio = SharpeRatio(equityCurve)

	report.Metrics = model.Metrics{
		"win_rate":       winRate * 100,
		"average_win":    avgWin,
		"average_loss":   avgLoss,
		"profit_factor":  profitFactor,
		"expectancy":     expectancy,
		"total_trades":   float64(total),
		"winning_trades": float64(wins),
		"losing_trades":  float64(losers),
		"max_drawdown":   report.MaxDrawdown,
		"sharpe_ratio":   report.SharpeRatio,
	}
	return report
}

// matchFIFO pairs each SELL with the oldest still-open BUY lots of the
// same symbol and returns the realized P&L per sell, split into
// profitable and losing round trips. Sells with no open lots (e.g.
// scale-outs of a pre-existing position) realize nothing.
func matchFIFO(trades []model.Fill) (profits, losses []decimal.Decimal) {
	lots := make(map[string][]buyLot)

	for _, t := range trades {
		if t.Side == model.SideBuy {
			lots[t.Symbol] = append(lots[t.Symbol], buyLot{price: t.Price, remaining: t.Quantity})
			continue
		}

		queue := lots[t.Symbol]
		if len(queue) == 0 {
			continue
		}

		pnl := decimal.Zero
		matched := int64(0)
		sellQty := t.Quantity

		for sellQty > 0 && len(queue) > 0 {
			lot := &queue[0]
			qty := sellQty
			if lot.remaining < qty {
				qty = lot.remaining
			}

			pnl = pnl.Add(t.Price.Sub(lot.price).Mul(decimal.NewFromInt(qty)))
			matched += qty
			sellQty -= qty
			lot.remaining -= qty

			if lot.remaining == 0 {
				queue = queue[1:]
			}
		}
		lots[t.Symbol] = queue

		if matched == 0 {
			continue
		}
		if pnl.IsPositive() {
			profits = append(profits, pnl)
		} else {
			losses = append(losses, pnl)
		}
	}
	return profits, losses
}

// MaxDrawdown returns the greatest peak-to-trough percentage decline
// over the equity curve.
func MaxDrawdown(equityCurve []model.EquityPoint) float64 {
	if len(equityCurve) == 0 {
		return 0
	}

	peak := equityCurve[0].PortfolioValue.InexactFloat64()
	maxDD := 0.0

	for _, pt := range equityCurve {
		v := pt.PortfolioValue.InexactFloat64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// SharpeRatio computes the annualized Sharpe ratio over daily equity
// returns. Defined as 0 for fewer than 2 equity points or a zero-
// variance return series.
func SharpeRatio(equityCurve []model.EquityPoint) float64 {
	if len(equityCurve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		prev := equityCurve[i-1].PortfolioValue.InexactFloat64()
		cur := equityCurve[i].PortfolioValue.InexactFloat64()
		if prev == 0 {
			continue
		}
		returns = append(returns, cur/prev-1)
	}
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	dailyRiskFree := annualRiskFree / tradingDays
	return (mean - dailyRiskFree) / std * math.Sqrt(tradingDays)
}
