package simulator

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/quantrex-lab/signalsim/internal/logger"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DuckDBStore is a LedgerStore backed by a DuckDB database. Monetary values
// are stored as decimal strings so they round-trip exactly.
type DuckDBStore struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDuckDBStore opens (or creates) a DuckDB database at path. Use ":memory:"
// for an ephemeral store.
func NewDuckDBStore(path string, logger *logger.Logger) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQuery, "failed to open ledger database", err)
	}

	store := &DuckDBStore{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}

	if err := store.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (s *DuckDBStore) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			owner_id TEXT,
			name TEXT,
			cash TEXT,
			initial_cash TEXT,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			account_id TEXT,
			symbol TEXT,
			quantity TEXT,
			average_cost TEXT,
			opened_at TIMESTAMP,
			PRIMARY KEY (account_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			account_id TEXT,
			timestamp TIMESTAMP,
			symbol TEXT,
			side TEXT,
			quantity TEXT,
			price TEXT,
			amount TEXT
		)`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return errors.Wrap(errors.ErrCodeStoreQuery, "failed to create ledger tables", err)
		}
	}

	return nil
}

// CreateAccount implements LedgerStore.
func (s *DuckDBStore) CreateAccount(ctx context.Context, record AccountRecord) error {
	insert := s.sq.
		Insert("accounts").
		Columns("id", "owner_id", "name", "cash", "initial_cash", "created_at").
		Values(record.ID, record.OwnerID, record.Name, record.Cash.String(), record.InitialCash.String(), record.CreatedAt).
		RunWith(s.db)

	if _, err := insert.ExecContext(ctx); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreQuery, err, "failed to create account %s", record.ID)
	}

	s.logger.Info("Created account",
		zap.String("id", record.ID),
		zap.String("owner", record.OwnerID),
	)

	return nil
}

// GetAccount implements LedgerStore.
func (s *DuckDBStore) GetAccount(ctx context.Context, accountID string) (AccountState, error) {
	record, err := s.getRecord(ctx, accountID)
	if err != nil {
		return AccountState{}, err
	}

	positions, err := s.getPositions(ctx, accountID)
	if err != nil {
		return AccountState{}, err
	}

	trades, err := s.getTrades(ctx, accountID)
	if err != nil {
		return AccountState{}, err
	}

	return AccountState{
		Record:    record,
		Positions: positions,
		Trades:    trades,
	}, nil
}

func (s *DuckDBStore) getRecord(ctx context.Context, accountID string) (AccountRecord, error) {
	query := s.sq.
		Select("id", "owner_id", "name", "cash", "initial_cash", "created_at").
		From("accounts").
		Where(squirrel.Eq{"id": accountID}).
		RunWith(s.db)

	var (
		record            AccountRecord
		cash, initialCash string
	)

	err := query.QueryRowContext(ctx).Scan(
		&record.ID, &record.OwnerID, &record.Name, &cash, &initialCash, &record.CreatedAt)
	if err == sql.ErrNoRows {
		return AccountRecord{}, errors.Newf(errors.ErrCodeAccountNotFound, "no account with id %s", accountID)
	}

	if err != nil {
		return AccountRecord{}, errors.Wrapf(errors.ErrCodeStoreQuery, err, "failed to load account %s", accountID)
	}

	if record.Cash, err = decimal.NewFromString(cash); err != nil {
		return AccountRecord{}, errors.Wrapf(errors.ErrCodeStoreQuery, err, "corrupt cash value for account %s", accountID)
	}

	if record.InitialCash, err = decimal.NewFromString(initialCash); err != nil {
		return AccountRecord{}, errors.Wrapf(errors.ErrCodeStoreQuery, err, "corrupt initial cash value for account %s", accountID)
	}

	return record, nil
}

func (s *DuckDBStore) getPositions(ctx context.Context, accountID string) ([]types.Position, error) {
	query := s.sq.
		Select("symbol", "quantity", "average_cost", "opened_at").
		From("positions").
		Where(squirrel.Eq{"account_id": accountID}).
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreQuery, err, "failed to load positions for account %s", accountID)
	}
	defer rows.Close()

	var positions []types.Position

	for rows.Next() {
		var (
			position              types.Position
			quantity, averageCost string
		)

		if err := rows.Scan(&position.Symbol, &quantity, &averageCost, &position.OpenedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreQuery, "failed to scan position", err)
		}

		if position.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreQuery, err, "corrupt quantity for position %s", position.Symbol)
		}

		if position.AverageCost, err = decimal.NewFromString(averageCost); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreQuery, err, "corrupt average cost for position %s", position.Symbol)
		}

		positions = append(positions, position)
	}

	return positions, rows.Err()
}

func (s *DuckDBStore) getTrades(ctx context.Context, accountID string) ([]types.Trade, error) {
	query := s.sq.
		Select("id", "timestamp", "symbol", "side", "quantity", "price", "amount").
		From("trades").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("timestamp ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreQuery, err, "failed to load trades for account %s", accountID)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		var (
			trade                   types.Trade
			side                    string
			quantity, price, amount string
		)

		if err := rows.Scan(&trade.ID, &trade.Timestamp, &trade.Symbol, &side, &quantity, &price, &amount); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreQuery, "failed to scan trade", err)
		}

		trade.Side = types.Side(side)

		if trade.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreQuery, err, "corrupt quantity for trade %s", trade.ID)
		}

		if trade.Price, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreQuery, err, "corrupt price for trade %s", trade.ID)
		}

		if trade.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreQuery, err, "corrupt amount for trade %s", trade.ID)
		}

		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// ListAccounts implements LedgerStore.
func (s *DuckDBStore) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	query := s.sq.
		Select("id").
		From("accounts").
		OrderBy("created_at ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQuery, "failed to list accounts", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreQuery, "failed to scan account id", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQuery, "error iterating accounts", err)
	}

	records := make([]AccountRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.getRecord(ctx, id)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// RecordTrade implements LedgerStore. The cash update, position replacement,
// and trade append run in one transaction.
func (s *DuckDBStore) RecordTrade(ctx context.Context, accountID string, cash decimal.Decimal, position optional.Option[types.Position], trade types.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreTx, "failed to begin trade transaction", err)
	}

	update := s.sq.
		Update("accounts").
		Set("cash", cash.String()).
		Where(squirrel.Eq{"id": accountID}).
		RunWith(tx)

	if _, err := update.ExecContext(ctx); err != nil {
		tx.Rollback()

		return errors.Wrapf(errors.ErrCodeStoreTx, err, "failed to update cash for account %s", accountID)
	}

	// Upsert rather than delete-then-insert: DuckDB rejects re-inserting a
	// just-deleted primary key once transactions interleave.
	if position.IsSome() {
		p := position.Unwrap()
		upsertPosition := s.sq.
			Insert("positions").
			Options("OR REPLACE").
			Columns("account_id", "symbol", "quantity", "average_cost", "opened_at").
			Values(accountID, p.Symbol, p.Quantity.String(), p.AverageCost.String(), p.OpenedAt).
			RunWith(tx)

		if _, err := upsertPosition.ExecContext(ctx); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeStoreTx, err, "failed to write position %s", p.Symbol)
		}
	} else {
		deletePosition := s.sq.
			Delete("positions").
			Where(squirrel.Eq{"account_id": accountID, "symbol": trade.Symbol}).
			RunWith(tx)

		if _, err := deletePosition.ExecContext(ctx); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeStoreTx, err, "failed to remove position %s", trade.Symbol)
		}
	}

	insertTrade := s.sq.
		Insert("trades").
		Columns("id", "account_id", "timestamp", "symbol", "side", "quantity", "price", "amount").
		Values(trade.ID, accountID, trade.Timestamp, trade.Symbol, string(trade.Side),
			trade.Quantity.String(), trade.Price.String(), trade.Amount.String()).
		RunWith(tx)

	if _, err := insertTrade.ExecContext(ctx); err != nil {
		tx.Rollback()

		return errors.Wrapf(errors.ErrCodeStoreTx, err, "failed to append trade %s", trade.ID)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreTx, "failed to commit trade", err)
	}

	return nil
}

// Close implements LedgerStore.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}
