package backtest

import (
	"math"

	"github.com/ugurhss/3x-trading-bot/internal/position"
)

// Result aggregates the performance of one backtest run.
type Result struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64
	TotalPnL             float64
	TotalReturn          float64 // TotalPnL / starting cash
	AvgWin               float64
	AvgLoss              float64
	ProfitFactor         float64 // +Inf when no losing trades
	SharpeRatio          float64
	MaxDrawdown          float64 // fraction of starting cash, positive
	MaxConsecutiveLosses int
	FinalEquity          float64
	Trades               []position.TradeResult
}

// hoursPerYear annualizes per-trade sharpe for an hourly-candle strategy.
const hoursPerYear = 365 * 24

func computeResult(trades []position.TradeResult, startingCash float64) *Result {
	res := &Result{Trades: trades, TotalTrades: len(trades)}
	if len(trades) == 0 || startingCash <= 0 {
		return res
	}

	var grossProfit, grossLoss float64
	returns := make([]float64, len(trades))
	cumulative, peak := 0.0, 0.0
	streak := 0

	for i, t := range trades {
		pnl := t.RealizedPnL
		res.TotalPnL += pnl
		returns[i] = pnl / startingCash

		if pnl > 0 {
			res.WinningTrades++
			grossProfit += pnl
		} else {
			res.LosingTrades++
			grossLoss += -pnl
		}

		if pnl < 0 {
			streak++
			if streak > res.MaxConsecutiveLosses {
				res.MaxConsecutiveLosses = streak
			}
		} else {
			streak = 0
		}

		cumulative += pnl
		if cumulative > peak {
			peak = cumulative
		}
		if dd := (peak - cumulative) / startingCash; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}
	}

	res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades)
	res.TotalReturn = res.TotalPnL / startingCash
	if res.WinningTrades > 0 {
		res.AvgWin = grossProfit / float64(res.WinningTrades)
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = -grossLoss / float64(res.LosingTrades)
	}
	if grossLoss > 0 {
		res.ProfitFactor = grossProfit / grossLoss
	} else {
		res.ProfitFactor = math.Inf(1)
	}
	res.SharpeRatio = sharpe(returns)
	return res
}

// sharpe is the per-trade mean over standard deviation, annualized for an
// hourly cadence the way the reference backtest reports it.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(hoursPerYear)
}
