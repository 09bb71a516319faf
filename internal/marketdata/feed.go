// Package marketdata provides ordered, gap-free OHLCV bar sequences for the
// backtester and simulator.
package marketdata

import (
	"context"
	"time"

	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
)

// Feed serves historical bars for a symbol. Implementations must return bars
// strictly ascending by date with no duplicate dates.
type Feed interface {
	// Fetch returns every bar for symbol in [start, end], oldest first.
	Fetch(ctx context.Context, symbol string, assetClass types.AssetClass, start, end time.Time) ([]types.MarketData, error)
	// LastBar returns the most recent bar for symbol.
	LastBar(ctx context.Context, symbol string, assetClass types.AssetClass) (types.MarketData, error)
	// Close releases any resources held by the feed.
	Close() error
}

// ValidateSeries checks the feed contract: strictly ascending dates, no
// duplicates. Implementations call this before handing bars to callers.
func ValidateSeries(bars []types.MarketData) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return errors.Newf(errors.ErrCodeDataOutOfOrder,
				"bar %d (%s) is not after bar %d (%s)",
				i, bars[i].Time.Format(time.RFC3339), i-1, bars[i-1].Time.Format(time.RFC3339))
		}
	}

	return nil
}
