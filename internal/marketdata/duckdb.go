package marketdata

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/quantrex-lab/signalsim/internal/logger"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBFeed serves bars from a DuckDB database. The same `bars` table is
// written by the download client, so a downloaded database file can be handed
// straight to the backtester.
type DuckDBFeed struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDuckDBFeed opens (or creates) a DuckDB database at path. Use ":memory:"
// for an ephemeral feed.
func NewDuckDBFeed(path string, logger *logger.Logger) (*DuckDBFeed, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataFeed, "failed to open bar database", err)
	}

	feed := &DuckDBFeed{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}

	if err := feed.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return feed, nil
}

func (f *DuckDBFeed) initialize() error {
	_, err := f.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT,
			asset_class TEXT,
			time TIMESTAMP,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE,
			PRIMARY KEY (symbol, time)
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataFeed, "failed to create bars table", err)
	}

	return nil
}

// InsertBars appends bars for a symbol. Duplicate (symbol, time) pairs fail.
func (f *DuckDBFeed) InsertBars(ctx context.Context, assetClass types.AssetClass, bars []types.MarketData) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataFeed, "failed to begin insert transaction", err)
	}

	for _, bar := range bars {
		insert := f.sq.
			Insert("bars").
			Columns("symbol", "asset_class", "time", "open", "high", "low", "close", "volume").
			Values(bar.Symbol, assetClass, bar.Time, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume).
			RunWith(tx)

		if _, err := insert.ExecContext(ctx); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeDataFeed, err, "failed to insert bar %s@%s", bar.Symbol, bar.Time)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeDataFeed, "failed to commit bars", err)
	}

	f.logger.Debug("Inserted bars",
		zap.Int("count", len(bars)),
	)

	return nil
}

// Fetch implements Feed.
func (f *DuckDBFeed) Fetch(ctx context.Context, symbol string, assetClass types.AssetClass, start, end time.Time) ([]types.MarketData, error) {
	query := f.sq.
		Select("symbol", "time", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol, "asset_class": assetClass}).
		Where(squirrel.GtOrEq{"time": start}).
		Where(squirrel.LtOrEq{"time": end}).
		OrderBy("time ASC").
		RunWith(f.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataFeed, err, "failed to query bars for %s", symbol)
	}
	defer rows.Close()

	var bars []types.MarketData

	for rows.Next() {
		var bar types.MarketData

		err := rows.Scan(&bar.Symbol, &bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataFeed, "failed to scan bar", err)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataFeed, "error iterating bars", err)
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound,
			"no bars for %s between %s and %s",
			symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	if err := ValidateSeries(bars); err != nil {
		return nil, err
	}

	return bars, nil
}

// LastBar implements Feed.
func (f *DuckDBFeed) LastBar(ctx context.Context, symbol string, assetClass types.AssetClass) (types.MarketData, error) {
	query := f.sq.
		Select("symbol", "time", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol, "asset_class": assetClass}).
		OrderBy("time DESC").
		Limit(1).
		RunWith(f.db)

	var bar types.MarketData

	err := query.QueryRowContext(ctx).Scan(&bar.Symbol, &bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume)
	if err == sql.ErrNoRows {
		return types.MarketData{}, errors.Newf(errors.ErrCodeDataNotFound, "no bars for %s", symbol)
	}

	if err != nil {
		return types.MarketData{}, errors.Wrapf(errors.ErrCodeDataFeed, err, "failed to query last bar for %s", symbol)
	}

	return bar, nil
}

// Close implements Feed.
func (f *DuckDBFeed) Close() error {
	return f.db.Close()
}
