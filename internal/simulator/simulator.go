package simulator

import (
	"context"
	"sync"
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

// OutcomeStatus classifies the result of a signal-driven trade attempt.
type OutcomeStatus string

const (
	OutcomeExecuted OutcomeStatus = "executed"
	OutcomeSkipped  OutcomeStatus = "skipped"
	OutcomeFailed   OutcomeStatus = "failed"
)

// TradeOutcome is the structured result of TradeOnSignal. Expected
// "nothing to do" cases are skips, ledger rejections are failures; neither is
// an error to the caller.
type TradeOutcome struct {
	Status OutcomeStatus
	Reason string
	Trade  optional.Option[types.Trade]
}

// PerformanceReport summarizes one account's standing. Positions are marked
// at each position's last trade price, an approximation rather than a live
// valuation.
type PerformanceReport struct {
	AccountID      string          `yaml:"account_id" json:"account_id"`
	InitialCash    decimal.Decimal `yaml:"initial_cash" json:"initial_cash"`
	CurrentCash    decimal.Decimal `yaml:"current_cash" json:"current_cash"`
	PortfolioValue decimal.Decimal `yaml:"portfolio_value" json:"portfolio_value"`
	TotalReturnPct float64         `yaml:"total_return_pct" json:"total_return_pct"`
}

// Simulator runs persisted multi-account trading. Operations against the same
// account are serialized by a per-account lock; accounts are independent of
// each other. Risk state is tracked per account so one account's positions
// never shadow another's.
type Simulator struct {
	store     LedgerStore
	feed      marketdata.Feed
	predictor predictor.Predictor
	profile   risk.Profile
	logger    *logger.Logger

	mu           sync.Mutex
	locks        map[string]*sync.Mutex
	riskManagers map[string]*risk.Manager
}

// New creates a Simulator over the given store and collaborators.
func New(store LedgerStore, feed marketdata.Feed, pred predictor.Predictor, profile risk.Profile, log *logger.Logger) *Simulator {
	return &Simulator{
		store:        store,
		feed:         feed,
		predictor:    pred,
		profile:      profile,
		logger:       log,
		locks:        make(map[string]*sync.Mutex),
		riskManagers: make(map[string]*risk.Manager),
	}
}

func (s *Simulator) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[accountID] = lock
	}

	return lock
}

// accountRisk returns the risk manager for an account. The manager itself is
// only touched while the account's lock is held.
func (s *Simulator) accountRisk(accountID string) *risk.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()

	manager, ok := s.riskManagers[accountID]
	if !ok {
		manager = risk.NewManager(s.profile)
		s.riskManagers[accountID] = manager
	}

	return manager
}

// CreateAccount opens a new account funded with initialCash.
func (s *Simulator) CreateAccount(ctx context.Context, ownerID, name string, initialCash decimal.Decimal) (AccountRecord, error) {
	if initialCash.LessThanOrEqual(decimal.Zero) {
		return AccountRecord{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"initial cash must be positive, got %s", initialCash.String())
	}

	record := AccountRecord{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Name:        name,
		Cash:        initialCash,
		InitialCash: initialCash,
		CreatedAt:   time.Now(),
	}

	if err := s.store.CreateAccount(ctx, record); err != nil {
		return AccountRecord{}, err
	}

	return record, nil
}

// loadAccount rebuilds the in-memory ledger for an account from the store.
func (s *Simulator) loadAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	state, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return ledger.Restore(state.Record.ID, state.Record.Cash, state.Record.InitialCash,
		state.Positions, state.Trades), nil
}

// Buy executes a manual buy against an account. Ledger violations surface as
// recoverable errors for the caller to report.
func (s *Simulator) Buy(ctx context.Context, accountID, symbol string, quantity, price decimal.Decimal) (types.Trade, error) {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return types.Trade{}, err
	}

	trade, err := account.Buy(symbol, quantity, price, time.Now())
	if err != nil {
		return types.Trade{}, err
	}

	if err := s.store.RecordTrade(ctx, accountID, account.Cash, account.Position(symbol), trade); err != nil {
		return types.Trade{}, err
	}

	s.logger.Info("Executed buy",
		zap.String("account", accountID),
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()),
	)

	return trade, nil
}

// Sell executes a manual sell against an account.
func (s *Simulator) Sell(ctx context.Context, accountID, symbol string, quantity, price decimal.Decimal) (types.Trade, error) {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return types.Trade{}, err
	}

	trade, err := account.Sell(symbol, quantity, price, time.Now())
	if err != nil {
		return types.Trade{}, err
	}

	if err := s.store.RecordTrade(ctx, accountID, account.Cash, account.Position(symbol), trade); err != nil {
		return types.Trade{}, err
	}

	s.logger.Info("Executed sell",
		zap.String("account", accountID),
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()),
	)

	return trade, nil
}

// TradeOnSignal applies a signal to an account: buys a risk-sized position on
// a buy signal when flat, liquidates on a sell signal when holding, and skips
// everything else. Store failures are the only errors returned.
func (s *Simulator) TradeOnSignal(ctx context.Context, accountID string, signal types.Signal) (TradeOutcome, error) {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return TradeOutcome{}, err
	}

	switch signal.Recommendation {
	case types.RecommendationBuy:
		return s.buyOnSignal(ctx, account, signal)
	case types.RecommendationSell:
		return s.sellOnSignal(ctx, account, signal)
	default:
		return skipped("hold signal"), nil
	}
}

func (s *Simulator) buyOnSignal(ctx context.Context, account *ledger.Account, signal types.Signal) (TradeOutcome, error) {
	if account.Position(signal.Symbol).IsSome() {
		return skipped("already holding " + signal.Symbol), nil
	}

	riskManager := s.accountRisk(account.ID)

	quantity, err := riskManager.PositionSize(signal.Symbol, signal.CurrentPrice,
		account.Cash.InexactFloat64(), optional.None[float64]())
	if err != nil {
		return failed(err), nil
	}

	if quantity <= 0 {
		return skipped("risk rules size the position at zero"), nil
	}

	trade, err := account.Buy(signal.Symbol, decimal.NewFromFloat(quantity), decimal.NewFromFloat(signal.CurrentPrice), time.Now())
	if err != nil {
		return failed(err), nil
	}

	if err := s.store.RecordTrade(ctx, account.ID, account.Cash, account.Position(signal.Symbol), trade); err != nil {
		return TradeOutcome{}, err
	}

	riskManager.OpenPosition(signal.Symbol, quantity, signal.CurrentPrice)

	return executed(trade), nil
}

func (s *Simulator) sellOnSignal(ctx context.Context, account *ledger.Account, signal types.Signal) (TradeOutcome, error) {
	position := account.Position(signal.Symbol)
	if position.IsNone() {
		return skipped("no open position for " + signal.Symbol), nil
	}

	trade, err := account.Sell(signal.Symbol, position.Unwrap().Quantity, decimal.NewFromFloat(signal.CurrentPrice), time.Now())
	if err != nil {
		return failed(err), nil
	}

	if err := s.store.RecordTrade(ctx, account.ID, account.Cash, account.Position(signal.Symbol), trade); err != nil {
		return TradeOutcome{}, err
	}

	s.accountRisk(account.ID).ClosePosition(signal.Symbol)

	return executed(trade), nil
}

// Performance reports an account's standing, marking open positions at their
// last trade price.
func (s *Simulator) Performance(ctx context.Context, accountID string) (PerformanceReport, error) {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return PerformanceReport{}, err
	}

	value, err := account.MarkToMarket(nil, true)
	if err != nil {
		return PerformanceReport{}, err
	}

	totalReturn := 0.0
	if account.InitialCash.IsPositive() {
		totalReturn = value.Sub(account.InitialCash).
			Div(account.InitialCash).
			Mul(decimal.NewFromInt(100)).
			InexactFloat64()
	}

	return PerformanceReport{
		AccountID:      accountID,
		InitialCash:    account.InitialCash,
		CurrentCash:    account.Cash,
		PortfolioValue: value,
		TotalReturnPct: totalReturn,
	}, nil
}

// SimulatePeriod replays the most recent days bars for symbol against an
// account, requesting a fresh signal per bar and trading on it. The model is
// reused as-is across the period, with no retraining.
func (s *Simulator) SimulatePeriod(ctx context.Context, accountID, symbol string, assetClass types.AssetClass, days int) ([]TradeOutcome, error) {
	if days <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "days must be positive, got %d", days)
	}

	last, err := s.feed.LastBar(ctx, symbol, assetClass)
	if err != nil {
		return nil, err
	}

	bars, err := s.feed.Fetch(ctx, symbol, assetClass, last.Time.AddDate(0, 0, -(days-1)), last.Time)
	if err != nil {
		return nil, err
	}

	outcomes := make([]TradeOutcome, 0, len(bars))

	for _, bar := range bars {
		signal, err := s.predictor.Predict(ctx, symbol, assetClass)
		if err != nil {
			return nil, err
		}

		// Trade at the bar being replayed, not at the feed's latest price.
		signal.CurrentPrice = bar.Close

		outcome, err := s.TradeOnSignal(ctx, accountID, signal)
		if err != nil {
			return nil, err
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func executed(trade types.Trade) TradeOutcome {
	return TradeOutcome{
		Status: OutcomeExecuted,
		Trade:  optional.Some(trade),
	}
}

func skipped(reason string) TradeOutcome {
	return TradeOutcome{
		Status: OutcomeSkipped,
		Reason: reason,
	}
}

func failed(err error) TradeOutcome {
	return TradeOutcome{
		Status: OutcomeFailed,
		Reason: err.Error(),
	}
}
