// Package simulator orchestrates persisted multi-account trading simulation:
// explicit buy/sell entry points plus a signal-driven auto-trade operation
// that sizes positions through the risk rules.
package simulator

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/shopspring/decimal"
)

// AccountRecord is the persisted identity and cash state of one account.
type AccountRecord struct {
	ID          string          `yaml:"id" json:"id"`
	OwnerID     string          `yaml:"owner_id" json:"owner_id"`
	Name        string          `yaml:"name" json:"name"`
	Cash        decimal.Decimal `yaml:"cash" json:"cash"`
	InitialCash decimal.Decimal `yaml:"initial_cash" json:"initial_cash"`
	CreatedAt   time.Time       `yaml:"created_at" json:"created_at"`
}

// AccountState is the full persisted state of one account: its record, open
// positions, and chronological trade log.
type AccountState struct {
	Record    AccountRecord
	Positions []types.Position
	Trades    []types.Trade
}

// LedgerStore persists account state. RecordTrade must apply the cash update,
// the position change, and the trade append atomically; a partially applied
// mutation is a correctness violation.
type LedgerStore interface {
	// CreateAccount persists a new account record.
	CreateAccount(ctx context.Context, record AccountRecord) error
	// GetAccount loads the full state for an account. Fails with
	// ErrCodeAccountNotFound when the account does not exist.
	GetAccount(ctx context.Context, accountID string) (AccountState, error)
	// ListAccounts returns every account record.
	ListAccounts(ctx context.Context) ([]AccountRecord, error)
	// RecordTrade atomically writes the post-trade cash balance, replaces the
	// position row for trade's symbol (removing it when position is None), and
	// appends the trade.
	RecordTrade(ctx context.Context, accountID string, cash decimal.Decimal, position optional.Option[types.Position], trade types.Trade) error
	// Close releases the underlying storage.
	Close() error
}
