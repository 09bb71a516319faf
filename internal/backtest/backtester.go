package backtest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantrex-lab/signalsim/internal/ledger"
	"github.com/quantrex-lab/signalsim/internal/logger"
	"github.com/quantrex-lab/signalsim/internal/marketdata"
	"github.com/quantrex-lab/signalsim/internal/predictor"
	"github.com/quantrex-lab/signalsim/internal/risk"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// State is the lifecycle phase of a Backtester.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateClosing State = "closing"
	StateDone    State = "done"
)

// fixedFractionAllocation is the share of available cash a buy signal commits.
// This sizing path is deliberately independent of the risk manager.
const fixedFractionAllocation = 0.10

// OnDayCallback observes progress after each simulated day.
type OnDayCallback func(day, totalDays int, snapshot types.PerformanceSnapshot)

// Backtester runs one historical walk-forward simulation. A Backtester is
// single-use: construct, Run once, read the result.
type Backtester struct {
	config      RunConfig
	feed        marketdata.Feed
	predictor   predictor.Predictor
	riskManager *risk.Manager
	logger      *logger.Logger

	state       State
	account     *ledger.Account
	snapshots   []types.PerformanceSnapshot
	lastRetrain time.Time
}

// NewBacktester creates a Backtester for the given run configuration.
func NewBacktester(config RunConfig, feed marketdata.Feed, pred predictor.Predictor, log *logger.Logger) (*Backtester, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Backtester{
		config:      config,
		feed:        feed,
		predictor:   pred,
		riskManager: risk.NewManager(config.Risk),
		logger:      log,
		state:       StateIdle,
		account:     ledger.NewAccount(uuid.New().String(), decimal.NewFromFloat(config.InitialCash)),
	}, nil
}

// State returns the current lifecycle phase.
func (b *Backtester) State() State {
	return b.state
}

// Snapshots returns the daily portfolio snapshots collected so far.
func (b *Backtester) Snapshots() []types.PerformanceSnapshot {
	return b.snapshots
}

// Run executes the walk-forward loop over the configured date range and
// returns the completed result. Data-feed and training failures are fatal to
// the run; no metrics are produced for a failed run.
func (b *Backtester) Run(ctx context.Context, onDay optional.Option[OnDayCallback]) (types.BacktestResult, error) {
	if b.state != StateIdle {
		return types.BacktestResult{}, errors.Newf(errors.ErrCodeBacktestState,
			"run already started, state is %s", b.state)
	}

	b.state = StateRunning

	bars, err := b.feed.Fetch(ctx, b.config.Symbol, b.config.AssetClass, b.config.StartTime, b.config.EndTime)
	if err != nil {
		return types.BacktestResult{}, err
	}

	// The feed contract does not promise a non-empty series.
	if len(bars) == 0 {
		return types.BacktestResult{}, errors.Newf(errors.ErrCodeDataNotFound,
			"no bars for %s between %s and %s", b.config.Symbol,
			b.config.StartTime.Format("2006-01-02"), b.config.EndTime.Format("2006-01-02"))
	}

	b.logger.Info("Starting backtest",
		zap.String("symbol", b.config.Symbol),
		zap.String("model", b.config.Model),
		zap.Int("days", len(bars)),
	)

	// Seed the cadence so the model trains on the first simulated day.
	b.lastRetrain = b.config.StartTime.AddDate(0, 0, -b.config.RetrainIntervalDays)

	for i, bar := range bars {
		if err := b.step(ctx, bar); err != nil {
			return types.BacktestResult{}, err
		}

		if onDay.IsSome() {
			onDay.Unwrap()(i+1, len(bars), b.snapshots[len(b.snapshots)-1])
		}
	}

	b.state = StateClosing

	if err := b.liquidate(bars[len(bars)-1]); err != nil {
		return types.BacktestResult{}, err
	}

	b.state = StateDone

	return b.buildResult(), nil
}

// step advances the simulation by one day: snapshot, retrain check, signal,
// trade.
func (b *Backtester) step(ctx context.Context, bar types.MarketData) error {
	closePrice := decimal.NewFromFloat(bar.Close)

	value, err := b.account.MarkToMarket(map[string]decimal.Decimal{b.config.Symbol: closePrice}, false)
	if err != nil {
		return err
	}

	b.snapshots = append(b.snapshots, types.PerformanceSnapshot{
		Date:           bar.Time,
		PortfolioValue: value.InexactFloat64(),
	})

	if b.daysSinceRetrain(bar.Time) >= b.config.RetrainIntervalDays {
		loss, err := b.predictor.Train(ctx, b.config.Symbol, b.config.AssetClass, b.config.TrainPeriodDays)
		if err != nil {
			return err
		}

		b.lastRetrain = bar.Time
		b.logger.Debug("Retrained model",
			zap.Time("day", bar.Time),
			zap.Float64("loss", loss),
		)
	}

	if b.config.EnableTrailingStop {
		b.riskManager.MarkPrice(b.config.Symbol, bar.Close)
		if b.account.Position(b.config.Symbol).IsSome() && b.riskManager.IsStopTriggered(b.config.Symbol, bar.Close) {
			return b.exitPosition(bar.Time, closePrice, "trailing stop")
		}
	}

	signal, err := b.predictor.Predict(ctx, b.config.Symbol, b.config.AssetClass)
	if err != nil {
		return err
	}

	switch signal.Recommendation {
	case types.RecommendationBuy:
		if b.account.Position(b.config.Symbol).IsNone() {
			return b.enterPosition(bar.Time, closePrice)
		}
	case types.RecommendationSell:
		if b.account.Position(b.config.Symbol).IsSome() {
			return b.exitPosition(bar.Time, closePrice, "sell signal")
		}
	}

	return nil
}

// enterPosition buys with a fixed fraction of available cash.
func (b *Backtester) enterPosition(day time.Time, price decimal.Decimal) error {
	investAmount := b.account.Cash.Mul(decimal.NewFromFloat(fixedFractionAllocation))
	quantity := investAmount.Div(price)

	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	trade, err := b.account.Buy(b.config.Symbol, quantity, price, day)
	if err != nil {
		return err
	}

	if b.config.EnableTrailingStop {
		b.riskManager.OpenPosition(b.config.Symbol, quantity.InexactFloat64(), price.InexactFloat64())
	}

	b.logger.Debug("Opened position",
		zap.Time("day", day),
		zap.String("quantity", trade.Quantity.String()),
		zap.String("price", trade.Price.String()),
	)

	return nil
}

// exitPosition liquidates the entire open position.
func (b *Backtester) exitPosition(day time.Time, price decimal.Decimal, reason string) error {
	position := b.account.Position(b.config.Symbol)
	if position.IsNone() {
		return nil
	}

	trade, err := b.account.Sell(b.config.Symbol, position.Unwrap().Quantity, price, day)
	if err != nil {
		return err
	}

	b.riskManager.ClosePosition(b.config.Symbol)

	b.logger.Debug("Closed position",
		zap.Time("day", day),
		zap.String("reason", reason),
		zap.String("quantity", trade.Quantity.String()),
		zap.String("price", trade.Price.String()),
	)

	return nil
}

// liquidate force-closes any remaining position at the final close price. The
// closing trade is dated at the configured end time.
func (b *Backtester) liquidate(finalBar types.MarketData) error {
	return b.exitPosition(b.config.EndTime, decimal.NewFromFloat(finalBar.Close), "end of run")
}

func (b *Backtester) daysSinceRetrain(day time.Time) int {
	return int(day.Sub(b.lastRetrain).Hours() / 24)
}

func (b *Backtester) buildResult() types.BacktestResult {
	trades := b.account.Trades()
	finalBalance := b.account.Cash.InexactFloat64()

	summary := computeMetrics(b.snapshots, trades, b.config.InitialCash, finalBalance)

	values := make([]float64, 0, len(b.snapshots))
	dates := make([]time.Time, 0, len(b.snapshots))

	for _, snapshot := range b.snapshots {
		values = append(values, snapshot.PortfolioValue)
		dates = append(dates, snapshot.Date)
	}

	return types.BacktestResult{
		ID:                   uuid.New().String(),
		Timestamp:            time.Now(),
		Symbol:               b.config.Symbol,
		ModelName:            b.config.Model,
		InitialBalance:       b.config.InitialCash,
		FinalBalance:         finalBalance,
		TotalReturn:          summary.TotalReturn,
		AnnualizedReturn:     summary.AnnualizedReturn,
		AnnualizedVolatility: summary.AnnualizedVolatility,
		SharpeRatio:          summary.SharpeRatio,
		MaxDrawdown:          summary.MaxDrawdown,
		NumTrades:            len(trades),
		WinRate:              summary.WinRate,
		TradeHistory:         trades,
		PortfolioValues:      values,
		Dates:                dates,
	}
}
