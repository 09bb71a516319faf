package backtest

import (
	"math"

	"github.com/quantrex-lab/signalsim/internal/types"
)

const tradingDaysPerYear = 252

// metricsSummary holds the derived performance statistics of one run.
type metricsSummary struct {
	TotalReturn          float64
	AnnualizedReturn     float64
	AnnualizedVolatility float64
	SharpeRatio          float64
	MaxDrawdown          float64
	WinRate              float64
}

// computeMetrics derives performance statistics from a run's daily snapshots
// and trade log. It is a pure function of its inputs.
func computeMetrics(snapshots []types.PerformanceSnapshot, trades []types.Trade, initialBalance, finalBalance float64) metricsSummary {
	returns := dailyReturns(snapshots)

	avgDailyReturn := mean(returns)
	annualizedReturn := math.Pow(1+avgDailyReturn, tradingDaysPerYear) - 1
	annualizedVolatility := sampleStdev(returns) * math.Sqrt(tradingDaysPerYear)

	sharpe := 0.0
	if annualizedVolatility != 0 {
		sharpe = annualizedReturn / annualizedVolatility
	}

	return metricsSummary{
		TotalReturn:          (finalBalance - initialBalance) / initialBalance * 100,
		AnnualizedReturn:     annualizedReturn,
		AnnualizedVolatility: annualizedVolatility,
		SharpeRatio:          sharpe,
		MaxDrawdown:          maxDrawdown(returns),
		WinRate:              winRate(trades),
	}
}

// dailyReturns converts the snapshot sequence into day-over-day returns. The
// result has one fewer element than the input.
func dailyReturns(snapshots []types.PerformanceSnapshot) []float64 {
	if len(snapshots) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		previous := snapshots[i-1].PortfolioValue
		if previous == 0 {
			returns = append(returns, 0)

			continue
		}

		returns = append(returns, snapshots[i].PortfolioValue/previous-1)
	}

	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// sampleStdev is the standard deviation with Bessel's correction (n-1).
func sampleStdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	avg := mean(values)

	sumSquares := 0.0
	for _, v := range values {
		deviation := v - avg
		sumSquares += deviation * deviation
	}

	return math.Sqrt(sumSquares / float64(len(values)-1))
}

// maxDrawdown is the worst decline of cumulative return from its running peak,
// in percent. Always <= 0.
func maxDrawdown(returns []float64) float64 {
	worst := 0.0
	cumulative := 1.0
	runningMax := 1.0

	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > runningMax {
			runningMax = cumulative
		}

		drawdown := (cumulative/runningMax - 1) * 100
		if drawdown < worst {
			worst = drawdown
		}
	}

	return worst
}

// winRate pairs consecutive trades by index and counts a pair a win when it is
// a buy followed by a sell at a strictly higher price. The pairing assumes the
// strict buy/sell alternation of the single-symbol full-liquidation loop.
func winRate(trades []types.Trade) float64 {
	pairs := len(trades) / 2
	if pairs == 0 {
		return 0
	}

	wins := 0
	for i := 0; i+1 < len(trades); i += 2 {
		entry, exit := trades[i], trades[i+1]
		if entry.Side == types.SideBuy && exit.Side == types.SideSell && exit.Price.GreaterThan(entry.Price) {
			wins++
		}
	}

	return float64(wins) / float64(pairs) * 100
}
