// Package risk implements position sizing and trailing stop-loss rules.
package risk

import (
	"github.com/moznion/go-optional"
	"github.com/quantrex-lab/signalsim/pkg/errors"
)

// Profile is the process-wide risk configuration for one Manager. It is
// immutable after construction.
type Profile struct {
	// MaxPortfolioRiskFraction bounds the loss a single trade may cause if its
	// stop-loss is hit, as a fraction of the account balance.
	MaxPortfolioRiskFraction float64 `yaml:"max_portfolio_risk_fraction" json:"max_portfolio_risk_fraction" validate:"gt=0,lte=1"`
	// MaxPositionSizeFraction bounds the capital allocated to a single
	// position, as a fraction of the account balance.
	MaxPositionSizeFraction float64 `yaml:"max_position_size_fraction" json:"max_position_size_fraction" validate:"gt=0,lte=1"`
	// StopLossPct is the distance of the trailing stop below the highest
	// price seen.
	StopLossPct float64 `yaml:"stop_loss_pct" json:"stop_loss_pct" validate:"gt=0,lt=1"`
}

// DefaultProfile returns the stock risk configuration: 2% max risk per
// trade, 10% max position size, 5% trailing stop.
func DefaultProfile() Profile {
	return Profile{
		MaxPortfolioRiskFraction: 0.02,
		MaxPositionSizeFraction:  0.1,
		StopLossPct:              0.05,
	}
}

// trackedPosition is the per-symbol risk state.
type trackedPosition struct {
	quantity         float64
	entryPrice       float64
	stopLoss         float64
	highestPriceSeen float64
}

// PositionInfo describes the risk state tracked for one symbol.
type PositionInfo struct {
	Symbol           string
	Quantity         float64
	EntryPrice       float64
	StopLoss         float64
	HighestPriceSeen float64
}

// Manager applies the rules of a Profile to a set of tracked positions.
// It is not safe for concurrent use.
type Manager struct {
	profile   Profile
	positions map[string]*trackedPosition
}

// NewManager creates a Manager for the given profile.
func NewManager(profile Profile) *Manager {
	return &Manager{
		profile:   profile,
		positions: make(map[string]*trackedPosition),
	}
}

// Profile returns the immutable risk profile.
func (m *Manager) Profile() Profile {
	return m.profile
}

// PositionSize returns the quantity to buy for symbol at price given the
// account balance. The result is the more conservative of a capital
// allocation cap and a stop-loss exposure cap:
//
//	min(maxPositionValue/price, maxRiskPerTrade/(price*stopLossPct))
//
// When volatility is supplied, the capital cap is scaled down by
// min(1, 0.1/volatility).
func (m *Manager) PositionSize(symbol string, price, accountBalance float64, volatility optional.Option[float64]) (float64, error) {
	if price <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidPrice, "price must be positive, got %f", price)
	}

	maxRiskPerTrade := accountBalance * m.profile.MaxPortfolioRiskFraction
	maxPositionValue := accountBalance * m.profile.MaxPositionSizeFraction

	if volatility.IsSome() && volatility.Unwrap() > 0 {
		factor := 0.1 / volatility.Unwrap()
		if factor > 1 {
			factor = 1
		}

		maxPositionValue *= factor
	}

	byAllocation := maxPositionValue / price
	byStopRisk := maxRiskPerTrade / (price * m.profile.StopLossPct)

	if byStopRisk < byAllocation {
		return byStopRisk, nil
	}

	return byAllocation, nil
}

// OpenPosition starts tracking risk state for symbol: the initial stop sits
// StopLossPct below the entry price.
func (m *Manager) OpenPosition(symbol string, quantity, entryPrice float64) {
	m.positions[symbol] = &trackedPosition{
		quantity:         quantity,
		entryPrice:       entryPrice,
		stopLoss:         entryPrice * (1 - m.profile.StopLossPct),
		highestPriceSeen: entryPrice,
	}
}

// MarkPrice updates the trailing stop for symbol. The stop ratchets upward
// with new highs and never moves down on a price drop.
func (m *Manager) MarkPrice(symbol string, currentPrice float64) {
	position, ok := m.positions[symbol]
	if !ok {
		return
	}

	if currentPrice > position.highestPriceSeen {
		position.highestPriceSeen = currentPrice
		position.stopLoss = position.highestPriceSeen * (1 - m.profile.StopLossPct)
	}
}

// IsStopTriggered reports whether currentPrice has reached the trailing stop
// for symbol. Always false for untracked symbols.
func (m *Manager) IsStopTriggered(symbol string, currentPrice float64) bool {
	position, ok := m.positions[symbol]
	if !ok {
		return false
	}

	return currentPrice <= position.stopLoss
}

// ClosePosition drops the tracked risk state for symbol.
func (m *Manager) ClosePosition(symbol string) {
	delete(m.positions, symbol)
}

// PositionInfo returns the tracked risk state for symbol, if any.
func (m *Manager) PositionInfo(symbol string) optional.Option[PositionInfo] {
	position, ok := m.positions[symbol]
	if !ok {
		return optional.None[PositionInfo]()
	}

	return optional.Some(PositionInfo{
		Symbol:           symbol,
		Quantity:         position.quantity,
		EntryPrice:       position.entryPrice,
		StopLoss:         position.stopLoss,
		HighestPriceSeen: position.highestPriceSeen,
	})
}

// PortfolioRisk returns the fraction of tracked portfolio value that would be
// lost if every stop-loss were hit, over all tracked positions whose symbol
// has a price in the map. Returns 0 when no tracked position has value.
func (m *Manager) PortfolioRisk(prices map[string]float64) float64 {
	totalRisk := 0.0
	totalValue := 0.0

	for symbol, position := range m.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}

		positionValue := position.quantity * price
		totalRisk += positionValue * m.profile.StopLossPct
		totalValue += positionValue
	}

	if totalValue <= 0 {
		return 0
	}

	return totalRisk / totalValue
}
