// Package ledger implements the virtual brokerage bookkeeping primitive: a
// cash balance, open positions keyed by symbol, and an append-only trade log.
// All monetary arithmetic uses decimals so the cash and position invariants
// hold exactly.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
	"github.com/shopspring/decimal"
)

// Account is a single virtual brokerage account. It is not safe for
// concurrent use; callers that share an account across goroutines must
// serialize access.
type Account struct {
	ID          string
	Cash        decimal.Decimal
	InitialCash decimal.Decimal
	positions   map[string]*types.Position
	trades      []types.Trade
}

// NewAccount creates an account funded with initialCash.
func NewAccount(id string, initialCash decimal.Decimal) *Account {
	return &Account{
		ID:          id,
		Cash:        initialCash,
		InitialCash: initialCash,
		positions:   make(map[string]*types.Position),
		trades:      nil,
	}
}

// Restore rebuilds an account from persisted state. Trades must be in
// chronological order.
func Restore(id string, cash, initialCash decimal.Decimal, positions []types.Position, trades []types.Trade) *Account {
	account := &Account{
		ID:          id,
		Cash:        cash,
		InitialCash: initialCash,
		positions:   make(map[string]*types.Position, len(positions)),
		trades:      trades,
	}

	for i := range positions {
		p := positions[i]
		account.positions[p.Symbol] = &p
	}

	return account
}

// Buy debits cash, creates or updates the position for symbol using the
// weighted-average cost rule, and appends a trade. It fails with
// ErrCodeInsufficientFunds when the order amount exceeds available cash.
func (a *Account) Buy(symbol string, quantity, price decimal.Decimal, timestamp time.Time) (types.Trade, error) {
	if err := validateOrder(quantity, price); err != nil {
		return types.Trade{}, err
	}

	amount := quantity.Mul(price)
	if amount.GreaterThan(a.Cash) {
		return types.Trade{}, errors.Newf(errors.ErrCodeInsufficientFunds,
			"buy amount %s exceeds available cash %s", amount.String(), a.Cash.String())
	}

	a.Cash = a.Cash.Sub(amount)

	if position, ok := a.positions[symbol]; ok {
		// newAvg = (oldQty*oldAvg + qty*price) / (oldQty + qty)
		totalQuantity := position.Quantity.Add(quantity)
		totalCost := position.Quantity.Mul(position.AverageCost).Add(amount)
		position.AverageCost = totalCost.Div(totalQuantity)
		position.Quantity = totalQuantity
	} else {
		a.positions[symbol] = &types.Position{
			Symbol:      symbol,
			Quantity:    quantity,
			AverageCost: price,
			OpenedAt:    timestamp,
		}
	}

	trade := a.appendTrade(symbol, types.SideBuy, quantity, price, amount, timestamp)

	return trade, nil
}

// Sell credits cash, decrements the position, removes it entirely when the
// quantity reaches exactly zero, and appends a trade. It fails with
// ErrCodeNoSuchPosition when no position is open and ErrCodeInsufficientQuantity
// when the position is smaller than the requested quantity.
func (a *Account) Sell(symbol string, quantity, price decimal.Decimal, timestamp time.Time) (types.Trade, error) {
	if err := validateOrder(quantity, price); err != nil {
		return types.Trade{}, err
	}

	position, ok := a.positions[symbol]
	if !ok {
		return types.Trade{}, errors.Newf(errors.ErrCodeNoSuchPosition, "no open position for %s", symbol)
	}

	if quantity.GreaterThan(position.Quantity) {
		return types.Trade{}, errors.Newf(errors.ErrCodeInsufficientQuantity,
			"sell quantity %s exceeds position quantity %s", quantity.String(), position.Quantity.String())
	}

	amount := quantity.Mul(price)
	a.Cash = a.Cash.Add(amount)

	position.Quantity = position.Quantity.Sub(quantity)
	if position.Quantity.IsZero() {
		delete(a.positions, symbol)
	}

	trade := a.appendTrade(symbol, types.SideSell, quantity, price, amount, timestamp)

	return trade, nil
}

// MarkToMarket returns cash plus the value of every open position at the
// given prices. A symbol missing from the price map fails with
// ErrCodePriceMissing unless lastTradeFallback is set, in which case the
// symbol's last trade price is used instead. The fallback is an approximation,
// not a live valuation.
func (a *Account) MarkToMarket(prices map[string]decimal.Decimal, lastTradeFallback bool) (decimal.Decimal, error) {
	value := a.Cash

	for symbol, position := range a.positions {
		price, ok := prices[symbol]
		if !ok {
			if !lastTradeFallback {
				return decimal.Zero, errors.Newf(errors.ErrCodePriceMissing, "no mark price for %s", symbol)
			}

			last := a.LastTradePrice(symbol)
			if last.IsNone() {
				return decimal.Zero, errors.Newf(errors.ErrCodePriceMissing,
					"no mark price or trade history for %s", symbol)
			}

			price = last.Unwrap()
		}

		value = value.Add(position.MarketValue(price))
	}

	return value, nil
}

// Position returns the open position for symbol, if any.
func (a *Account) Position(symbol string) optional.Option[types.Position] {
	position, ok := a.positions[symbol]
	if !ok {
		return optional.None[types.Position]()
	}

	return optional.Some(*position)
}

// Positions returns a copy of every open position.
func (a *Account) Positions() []types.Position {
	positions := make([]types.Position, 0, len(a.positions))
	for _, position := range a.positions {
		positions = append(positions, *position)
	}

	return positions
}

// Trades returns the trade log in chronological order.
func (a *Account) Trades() []types.Trade {
	return a.trades
}

// LastTradePrice returns the price of the most recent trade for symbol.
func (a *Account) LastTradePrice(symbol string) optional.Option[decimal.Decimal] {
	for i := len(a.trades) - 1; i >= 0; i-- {
		if a.trades[i].Symbol == symbol {
			return optional.Some(a.trades[i].Price)
		}
	}

	return optional.None[decimal.Decimal]()
}

func (a *Account) appendTrade(symbol string, side types.Side, quantity, price, amount decimal.Decimal, timestamp time.Time) types.Trade {
	trade := types.Trade{
		ID:        uuid.New().String(),
		Timestamp: timestamp,
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Amount:    amount,
	}
	a.trades = append(a.trades, trade)

	return trade
}

func validateOrder(quantity, price decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return errors.Newf(errors.ErrCodeInvalidQuantity, "quantity must be positive, got %s", quantity.String())
	}

	if price.LessThanOrEqual(decimal.Zero) {
		return errors.Newf(errors.ErrCodeInvalidPrice, "price must be positive, got %s", price.String())
	}

	return nil
}
