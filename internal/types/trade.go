package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is an immutable record of a fill. Once appended to a trade log it is
// never mutated or deleted.
type Trade struct {
	ID        string          `yaml:"id" json:"id"`
	Timestamp time.Time       `yaml:"timestamp" json:"timestamp"`
	Symbol    string          `yaml:"symbol" json:"symbol"`
	Side      Side            `yaml:"side" json:"side"`
	Quantity  decimal.Decimal `yaml:"quantity" json:"quantity"`
	Price     decimal.Decimal `yaml:"price" json:"price"`
	// Amount is Quantity * Price.
	Amount decimal.Decimal `yaml:"amount" json:"amount"`
}

// Position represents current holdings of a symbol. Quantity is strictly
// positive while the position exists; the entry is removed when it reaches
// zero.
type Position struct {
	Symbol      string          `yaml:"symbol" json:"symbol"`
	Quantity    decimal.Decimal `yaml:"quantity" json:"quantity"`
	AverageCost decimal.Decimal `yaml:"average_cost" json:"average_cost"`
	OpenedAt    time.Time       `yaml:"opened_at" json:"opened_at"`
}

// MarketValue values the position at the given price.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}
