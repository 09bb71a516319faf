package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PerformanceSnapshot is the portfolio value sampled once per simulated day.
// The snapshot sequence across a run is the basis for all derived metrics.
type PerformanceSnapshot struct {
	Date           time.Time `yaml:"date" json:"date"`
	PortfolioValue float64   `yaml:"portfolio_value" json:"portfolio_value"`
}

// BacktestResult is the full output of a completed backtest run, as consumed
// by external callers.
type BacktestResult struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when this backtest run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Symbol of the traded asset.
	Symbol string `yaml:"symbol" json:"symbol"`
	// ModelName identifies the predictive model that drove the run.
	ModelName string `yaml:"model_name" json:"model_name"`
	// InitialBalance is the starting cash.
	InitialBalance float64 `yaml:"initial_balance" json:"initial_balance"`
	// FinalBalance is the cash after the closing liquidation.
	FinalBalance float64 `yaml:"final_balance" json:"final_balance"`
	// TotalReturn is the percentage return over the run.
	TotalReturn float64 `yaml:"total_return" json:"total_return"`
	// AnnualizedReturn assumes 252 trading days per year.
	AnnualizedReturn float64 `yaml:"annualized_return" json:"annualized_return"`
	// AnnualizedVolatility is the daily return stdev scaled by sqrt(252).
	AnnualizedVolatility float64 `yaml:"annualized_volatility" json:"annualized_volatility"`
	// SharpeRatio is AnnualizedReturn / AnnualizedVolatility, 0 when volatility is 0.
	SharpeRatio float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	// MaxDrawdown is the worst peak-to-trough decline in percent (<= 0).
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown"`
	// NumTrades counts every fill, buys and sells alike.
	NumTrades int `yaml:"num_trades" json:"num_trades"`
	// WinRate is the percentage of buy/sell pairs closed at a higher price.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// TradeHistory is the chronological trade log.
	TradeHistory []Trade `yaml:"trade_history" json:"trade_history"`
	// PortfolioValues are the daily portfolio values.
	PortfolioValues []float64 `yaml:"portfolio_values" json:"portfolio_values"`
	// Dates are the days the portfolio values were sampled on.
	Dates []time.Time `yaml:"dates" json:"dates"`
}

// WriteBacktestResult writes a result to disk as YAML.
func WriteBacktestResult(path string, result BacktestResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest result to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backtest result to file: %w", err)
	}

	return nil
}
