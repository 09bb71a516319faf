// Package marketdata downloads historical bars from external providers into
// the local bar database consumed by the backtester and simulator.
package marketdata

import (
	"context"
	"time"

	"github.com/quantrex-lab/signalsim/internal/types"
)

// OnDownloadProgress reports download progress to the caller.
type OnDownloadProgress func(processed, total float64, message string)

// Provider fetches historical daily bars from an external market data source.
type Provider interface {
	// Download returns the daily bars for ticker between start and end,
	// ascending by time.
	Download(ctx context.Context, ticker string, start, end time.Time, onProgress OnDownloadProgress) ([]types.MarketData, error)
}
