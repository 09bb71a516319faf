package marketdata

import (
	"context"
	"fmt"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// PolygonProvider downloads daily aggregates from the Polygon REST API.
type PolygonProvider struct {
	client *polygon.Client
}

// NewPolygonProvider creates a provider authenticated with apiKey.
func NewPolygonProvider(apiKey string) (*PolygonProvider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon api key is required")
	}

	return &PolygonProvider{
		client: polygon.New(apiKey),
	}, nil
}

// Download implements Provider.
func (p *PolygonProvider) Download(ctx context.Context, ticker string, start, end time.Time, onProgress OnDownloadProgress) ([]types.MarketData, error) {
	totalDays := int(end.Sub(start).Hours()/24) + 1

	bar := progressbar.NewOptions(totalDays,
		progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", ticker)),
		progressbar.OptionShowCount(),
	)

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithLimit(50000)

	iter := p.client.ListAggs(ctx, params)

	var bars []types.MarketData

	for iter.Next() {
		agg := iter.Item()
		bars = append(bars, types.MarketData{
			Symbol: ticker,
			Time:   time.Time(agg.Timestamp),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})

		daysElapsed := int(time.Time(agg.Timestamp).Sub(start).Hours() / 24)
		bar.Set(daysElapsed)

		if onProgress != nil {
			onProgress(float64(daysElapsed), float64(totalDays), fmt.Sprintf("Downloading %s", ticker))
		}
	}

	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataFeed, err, "failed to download aggregates for %s", ticker)
	}

	bar.Finish()

	return bars, nil
}
