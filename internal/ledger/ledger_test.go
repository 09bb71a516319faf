package ledger

import (
	"testing"
	"time"

	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type LedgerTestSuite struct {
	suite.Suite
	account *Account
	now     time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func (suite *LedgerTestSuite) SetupTest() {
	suite.account = NewAccount("acct-1", decimal.NewFromInt(10000))
	suite.now = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
}

func (suite *LedgerTestSuite) TestBuyCreatesPosition() {
	trade, err := suite.account.Buy("AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100), suite.now)
	suite.Require().NoError(err)

	suite.Equal(types.SideBuy, trade.Side)
	suite.True(trade.Amount.Equal(decimal.NewFromInt(1000)))
	suite.True(suite.account.Cash.Equal(decimal.NewFromInt(9000)))

	position := suite.account.Position("AAPL")
	suite.Require().True(position.IsSome())
	suite.True(position.Unwrap().Quantity.Equal(decimal.NewFromInt(10)))
	suite.True(position.Unwrap().AverageCost.Equal(decimal.NewFromInt(100)))
}

func (suite *LedgerTestSuite) TestBuyInsufficientFunds() {
	_, err := suite.account.Buy("AAPL", decimal.NewFromInt(200), decimal.NewFromInt(100), suite.now)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientFunds))
	suite.True(suite.account.Cash.Equal(decimal.NewFromInt(10000)))
	suite.Empty(suite.account.Trades())
}

func (suite *LedgerTestSuite) TestBuyWeightedAverageCost() {
	_, err := suite.account.Buy("AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100), suite.now)
	suite.Require().NoError(err)
	_, err = suite.account.Buy("AAPL", decimal.NewFromInt(10), decimal.NewFromInt(110), suite.now.AddDate(0, 0, 1))
	suite.Require().NoError(err)

	position := suite.account.Position("AAPL").Unwrap()
	suite.True(position.Quantity.Equal(decimal.NewFromInt(20)))
	suite.True(position.AverageCost.Equal(decimal.NewFromInt(105)))
}

func (suite *LedgerTestSuite) TestSellWithoutPosition() {
	_, err := suite.account.Sell("AAPL", decimal.NewFromInt(1), decimal.NewFromInt(100), suite.now)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeNoSuchPosition))
}

func (suite *LedgerTestSuite) TestSellMoreThanHeld() {
	_, err := suite.account.Buy("AAPL", decimal.NewFromInt(5), decimal.NewFromInt(100), suite.now)
	suite.Require().NoError(err)

	_, err = suite.account.Sell("AAPL", decimal.NewFromInt(6), decimal.NewFromInt(100), suite.now)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientQuantity))
}

func (suite *LedgerTestSuite) TestSellRemovesPositionAtZero() {
	_, err := suite.account.Buy("AAPL", decimal.NewFromInt(5), decimal.NewFromInt(100), suite.now)
	suite.Require().NoError(err)

	_, err = suite.account.Sell("AAPL", decimal.NewFromInt(5), decimal.NewFromInt(110), suite.now)
	suite.Require().NoError(err)

	suite.True(suite.account.Position("AAPL").IsNone())
	suite.True(suite.account.Cash.Equal(decimal.NewFromInt(10050)))
	suite.Len(suite.account.Trades(), 2)
}

func (suite *LedgerTestSuite) TestFractionalRoundTrip() {
	// Buy 6.667 units at 150, sell the lot at 160.
	quantity := decimal.NewFromFloat(6.667)

	buy, err := suite.account.Buy("BTC/USDT", quantity, decimal.NewFromInt(150), suite.now)
	suite.Require().NoError(err)
	suite.True(buy.Amount.Equal(decimal.NewFromFloat(1000.05)), "buy amount %s", buy.Amount)

	sell, err := suite.account.Sell("BTC/USDT", quantity, decimal.NewFromInt(160), suite.now)
	suite.Require().NoError(err)
	suite.True(sell.Amount.Equal(decimal.NewFromFloat(1066.72)), "sell amount %s", sell.Amount)

	gain := suite.account.Cash.Sub(suite.account.InitialCash)
	suite.True(gain.Equal(decimal.NewFromFloat(66.67)), "cash gain %s", gain)
	suite.True(suite.account.Position("BTC/USDT").IsNone())
}

func (suite *LedgerTestSuite) TestMarkToMarket() {
	_, err := suite.account.Buy("AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100), suite.now)
	suite.Require().NoError(err)

	value, err := suite.account.MarkToMarket(map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(120),
	}, false)
	suite.Require().NoError(err)
	suite.True(value.Equal(decimal.NewFromInt(10200)))
}

func (suite *LedgerTestSuite) TestMarkToMarketMissingPrice() {
	_, err := suite.account.Buy("AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100), suite.now)
	suite.Require().NoError(err)

	_, err = suite.account.MarkToMarket(map[string]decimal.Decimal{}, false)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodePriceMissing))

	// With the last-trade fallback the position marks at its buy price.
	value, err := suite.account.MarkToMarket(map[string]decimal.Decimal{}, true)
	suite.Require().NoError(err)
	suite.True(value.Equal(decimal.NewFromInt(10000)))
}

func (suite *LedgerTestSuite) TestRestoreRebuildsState() {
	_, err := suite.account.Buy("AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100), suite.now)
	suite.Require().NoError(err)

	restored := Restore(
		suite.account.ID,
		suite.account.Cash,
		suite.account.InitialCash,
		suite.account.Positions(),
		suite.account.Trades(),
	)

	suite.True(restored.Cash.Equal(suite.account.Cash))
	suite.Require().True(restored.Position("AAPL").IsSome())
	suite.True(restored.Position("AAPL").Unwrap().Quantity.Equal(decimal.NewFromInt(10)))
	suite.Len(restored.Trades(), 1)
}

func (suite *LedgerTestSuite) TestCashNeverNegative() {
	_, err := suite.account.Buy("AAPL", decimal.NewFromInt(100), decimal.NewFromInt(100), suite.now)
	suite.Require().NoError(err)
	suite.True(suite.account.Cash.Equal(decimal.Zero))

	_, err = suite.account.Buy("AAPL", decimal.NewFromFloat(0.01), decimal.NewFromInt(100), suite.now)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientFunds))
	suite.False(suite.account.Cash.IsNegative())
}
