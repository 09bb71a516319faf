package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quantrex-lab/signalsim/internal/logger"
	"github.com/quantrex-lab/signalsim/internal/marketdata"
	"github.com/quantrex-lab/signalsim/internal/risk"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

// scriptedPredictor replays fixed recommendations so tests decide which bars
// trade.
type scriptedPredictor struct {
	recommendations []types.Recommendation
	calls           int
}

func (p *scriptedPredictor) Train(_ context.Context, _ string, _ types.AssetClass, _ int) (float64, error) {
	return 0.01, nil
}

func (p *scriptedPredictor) ModelExists(_ string, _ types.AssetClass) bool {
	return true
}

func (p *scriptedPredictor) ModelAge(_ string, _ types.AssetClass) time.Duration {
	return 0
}

func (p *scriptedPredictor) Predict(_ context.Context, symbol string, _ types.AssetClass) (types.Signal, error) {
	recommendation := types.RecommendationHold
	if p.calls < len(p.recommendations) {
		recommendation = p.recommendations[p.calls]
	}
	p.calls++

	return types.Signal{
		Symbol:         symbol,
		Recommendation: recommendation,
		ModelName:      "scripted",
	}, nil
}

type SimulatorTestSuite struct {
	suite.Suite
	store     *DuckDBStore
	feed      *marketdata.DuckDBFeed
	predictor *scriptedPredictor
	simulator *Simulator
	ctx       context.Context
}

func TestSimulatorSuite(t *testing.T) {
	suite.Run(t, new(SimulatorTestSuite))
}

func (suite *SimulatorTestSuite) SetupTest() {
	store, err := NewDuckDBStore(":memory:", logger.NewNopLogger())
	suite.Require().NoError(err)
	suite.store = store

	feed, err := marketdata.NewDuckDBFeed(":memory:", logger.NewNopLogger())
	suite.Require().NoError(err)
	suite.feed = feed

	suite.predictor = &scriptedPredictor{}
	suite.simulator = New(store, feed, suite.predictor, risk.DefaultProfile(), logger.NewNopLogger())
	suite.ctx = context.Background()
}

func (suite *SimulatorTestSuite) TearDownTest() {
	suite.Require().NoError(suite.store.Close())
	suite.Require().NoError(suite.feed.Close())
}

func (suite *SimulatorTestSuite) createAccount(initialCash float64) AccountRecord {
	record, err := suite.simulator.CreateAccount(suite.ctx, "owner-1", "paper", decimal.NewFromFloat(initialCash))
	suite.Require().NoError(err)

	return record
}

func (suite *SimulatorTestSuite) seedBars(symbol string, closes []float64) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bars := make([]types.MarketData, 0, len(closes))
	for i, close := range closes {
		bars = append(bars, types.MarketData{
			Symbol: symbol,
			Time:   start.AddDate(0, 0, i),
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: 1000,
		})
	}

	suite.Require().NoError(suite.feed.InsertBars(suite.ctx, types.AssetClassStock, bars))
}

func buySignal(symbol string, price float64) types.Signal {
	return types.Signal{
		Symbol:         symbol,
		CurrentPrice:   price,
		Recommendation: types.RecommendationBuy,
	}
}

func sellSignal(symbol string, price float64) types.Signal {
	return types.Signal{
		Symbol:         symbol,
		CurrentPrice:   price,
		Recommendation: types.RecommendationSell,
	}
}

func (suite *SimulatorTestSuite) TestCreateAndListAccounts() {
	record := suite.createAccount(10000)

	state, err := suite.store.GetAccount(suite.ctx, record.ID)
	suite.Require().NoError(err)
	suite.Equal("owner-1", state.Record.OwnerID)
	suite.True(state.Record.Cash.Equal(decimal.NewFromInt(10000)))
	suite.Empty(state.Positions)
	suite.Empty(state.Trades)

	records, err := suite.store.ListAccounts(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(records, 1)
}

func (suite *SimulatorTestSuite) TestCreateAccountRejectsNonPositiveCash() {
	_, err := suite.simulator.CreateAccount(suite.ctx, "owner-1", "paper", decimal.Zero)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *SimulatorTestSuite) TestAccountNotFound() {
	_, err := suite.simulator.Performance(suite.ctx, "missing")
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAccountNotFound))
}

func (suite *SimulatorTestSuite) TestManualBuyPersists() {
	record := suite.createAccount(10000)

	trade, err := suite.simulator.Buy(suite.ctx, record.ID, "AAPL",
		decimal.NewFromInt(10), decimal.NewFromInt(100))
	suite.Require().NoError(err)
	suite.True(trade.Amount.Equal(decimal.NewFromInt(1000)))

	state, err := suite.store.GetAccount(suite.ctx, record.ID)
	suite.Require().NoError(err)
	suite.True(state.Record.Cash.Equal(decimal.NewFromInt(9000)))
	suite.Require().Len(state.Positions, 1)
	suite.True(state.Positions[0].Quantity.Equal(decimal.NewFromInt(10)))
	suite.Len(state.Trades, 1)
}

func (suite *SimulatorTestSuite) TestManualSellRoundTrip() {
	record := suite.createAccount(10000)

	_, err := suite.simulator.Buy(suite.ctx, record.ID, "AAPL",
		decimal.NewFromInt(10), decimal.NewFromInt(100))
	suite.Require().NoError(err)

	_, err = suite.simulator.Sell(suite.ctx, record.ID, "AAPL",
		decimal.NewFromInt(10), decimal.NewFromInt(110))
	suite.Require().NoError(err)

	state, err := suite.store.GetAccount(suite.ctx, record.ID)
	suite.Require().NoError(err)
	suite.True(state.Record.Cash.Equal(decimal.NewFromInt(10100)))
	suite.Empty(state.Positions)
	suite.Len(state.Trades, 2)
}

func (suite *SimulatorTestSuite) TestBuyRejectionLeavesStateUntouched() {
	record := suite.createAccount(1000)

	_, err := suite.simulator.Buy(suite.ctx, record.ID, "AAPL",
		decimal.NewFromInt(100), decimal.NewFromInt(100))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientFunds))

	state, err := suite.store.GetAccount(suite.ctx, record.ID)
	suite.Require().NoError(err)
	suite.True(state.Record.Cash.Equal(decimal.NewFromInt(1000)))
	suite.Empty(state.Trades)
}

func (suite *SimulatorTestSuite) TestSellWithoutPositionFails() {
	record := suite.createAccount(1000)

	_, err := suite.simulator.Sell(suite.ctx, record.ID, "AAPL",
		decimal.NewFromInt(1), decimal.NewFromInt(100))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeNoSuchPosition))
}

func (suite *SimulatorTestSuite) TestTradeOnSignalBuyUsesRiskSizing() {
	record := suite.createAccount(10000)

	outcome, err := suite.simulator.TradeOnSignal(suite.ctx, record.ID, buySignal("AAPL", 100))
	suite.Require().NoError(err)
	suite.Equal(OutcomeExecuted, outcome.Status)

	// Default profile: min(10% of 10000 / 100, 2% of 10000 / (100*5%)) = 10.
	trade := outcome.Trade.Unwrap()
	suite.True(trade.Quantity.Equal(decimal.NewFromInt(10)))
}

func (suite *SimulatorTestSuite) TestTradeOnSignalSkipsWhileHolding() {
	record := suite.createAccount(10000)

	_, err := suite.simulator.TradeOnSignal(suite.ctx, record.ID, buySignal("AAPL", 100))
	suite.Require().NoError(err)

	outcome, err := suite.simulator.TradeOnSignal(suite.ctx, record.ID, buySignal("AAPL", 105))
	suite.Require().NoError(err)
	suite.Equal(OutcomeSkipped, outcome.Status)
	suite.Contains(outcome.Reason, "already holding")
}

func (suite *SimulatorTestSuite) TestTradeOnSignalSellWithoutPositionSkips() {
	record := suite.createAccount(10000)

	outcome, err := suite.simulator.TradeOnSignal(suite.ctx, record.ID, sellSignal("AAPL", 100))
	suite.Require().NoError(err)
	suite.Equal(OutcomeSkipped, outcome.Status)
}

func (suite *SimulatorTestSuite) TestTradeOnSignalHoldSkips() {
	record := suite.createAccount(10000)

	outcome, err := suite.simulator.TradeOnSignal(suite.ctx, record.ID, types.Signal{
		Symbol:         "AAPL",
		CurrentPrice:   100,
		Recommendation: types.RecommendationHold,
	})
	suite.Require().NoError(err)
	suite.Equal(OutcomeSkipped, outcome.Status)
	suite.Equal("hold signal", outcome.Reason)
}

func (suite *SimulatorTestSuite) TestTradeOnSignalSellLiquidates() {
	record := suite.createAccount(10000)

	_, err := suite.simulator.TradeOnSignal(suite.ctx, record.ID, buySignal("AAPL", 100))
	suite.Require().NoError(err)

	outcome, err := suite.simulator.TradeOnSignal(suite.ctx, record.ID, sellSignal("AAPL", 110))
	suite.Require().NoError(err)
	suite.Equal(OutcomeExecuted, outcome.Status)

	report, err := suite.simulator.Performance(suite.ctx, record.ID)
	suite.Require().NoError(err)
	suite.True(report.CurrentCash.Equal(decimal.NewFromInt(10100)))
	suite.InDelta(1.0, report.TotalReturnPct, 1e-9)
}

func (suite *SimulatorTestSuite) TestPerformanceMarksAtLastTradePrice() {
	record := suite.createAccount(10000)

	_, err := suite.simulator.TradeOnSignal(suite.ctx, record.ID, buySignal("AAPL", 100))
	suite.Require().NoError(err)

	report, err := suite.simulator.Performance(suite.ctx, record.ID)
	suite.Require().NoError(err)

	// Ten units marked at the last trade price of 100 plus 9000 cash.
	suite.True(report.PortfolioValue.Equal(decimal.NewFromInt(10000)))
	suite.Zero(report.TotalReturnPct)
}

func (suite *SimulatorTestSuite) TestSimulatePeriod() {
	record := suite.createAccount(10000)
	suite.seedBars("AAPL", []float64{100, 105, 110})
	suite.predictor.recommendations = []types.Recommendation{
		types.RecommendationBuy,
		types.RecommendationHold,
		types.RecommendationSell,
	}

	outcomes, err := suite.simulator.SimulatePeriod(suite.ctx, record.ID, "AAPL", types.AssetClassStock, 3)
	suite.Require().NoError(err)
	suite.Require().Len(outcomes, 3)

	suite.Equal(OutcomeExecuted, outcomes[0].Status)
	suite.Equal(OutcomeSkipped, outcomes[1].Status)
	suite.Equal(OutcomeExecuted, outcomes[2].Status)

	report, err := suite.simulator.Performance(suite.ctx, record.ID)
	suite.Require().NoError(err)
	suite.True(report.CurrentCash.Equal(decimal.NewFromInt(10100)))
}

func (suite *SimulatorTestSuite) TestReopeningPositionPersists() {
	record := suite.createAccount(10000)

	_, err := suite.simulator.Buy(suite.ctx, record.ID, "AAPL",
		decimal.NewFromInt(10), decimal.NewFromInt(100))
	suite.Require().NoError(err)

	_, err = suite.simulator.Sell(suite.ctx, record.ID, "AAPL",
		decimal.NewFromInt(10), decimal.NewFromInt(110))
	suite.Require().NoError(err)

	_, err = suite.simulator.Buy(suite.ctx, record.ID, "AAPL",
		decimal.NewFromInt(5), decimal.NewFromInt(100))
	suite.Require().NoError(err)

	state, err := suite.store.GetAccount(suite.ctx, record.ID)
	suite.Require().NoError(err)
	suite.Require().Len(state.Positions, 1)
	suite.True(state.Positions[0].Quantity.Equal(decimal.NewFromInt(5)))
	suite.Len(state.Trades, 3)
}

func (suite *SimulatorTestSuite) TestConcurrentAccountsTradeIndependently() {
	accountA := suite.createAccount(10000)
	accountB := suite.createAccount(10000)

	const cycles = 100

	tradeLoop := func(accountID, symbol string) error {
		for i := 0; i < cycles; i++ {
			outcome, err := suite.simulator.TradeOnSignal(suite.ctx, accountID, buySignal(symbol, 100))
			if err != nil {
				return err
			}

			if outcome.Status != OutcomeExecuted {
				return errors.Newf(errors.ErrCodeUnknown, "buy not executed: %s", outcome.Reason)
			}

			outcome, err = suite.simulator.TradeOnSignal(suite.ctx, accountID, sellSignal(symbol, 100))
			if err != nil {
				return err
			}

			if outcome.Status != OutcomeExecuted {
				return errors.Newf(errors.ErrCodeUnknown, "sell not executed: %s", outcome.Reason)
			}
		}

		return nil
	}

	results := make(chan error, 2)

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		results <- tradeLoop(accountA.ID, "AAPL")
	}()

	go func() {
		defer wg.Done()
		results <- tradeLoop(accountB.ID, "MSFT")
	}()

	wg.Wait()
	close(results)

	for err := range results {
		suite.Require().NoError(err)
	}

	for _, accountID := range []string{accountA.ID, accountB.ID} {
		state, err := suite.store.GetAccount(suite.ctx, accountID)
		suite.Require().NoError(err)
		suite.True(state.Record.Cash.Equal(decimal.NewFromInt(10000)))
		suite.Empty(state.Positions)
		suite.Len(state.Trades, 2*cycles)
	}
}

func (suite *SimulatorTestSuite) TestSimulatePeriodRejectsNonPositiveDays() {
	record := suite.createAccount(10000)

	_, err := suite.simulator.SimulatePeriod(suite.ctx, record.ID, "AAPL", types.AssetClassStock, 0)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}
