package marketdata

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/quantrex-lab/signalsim/internal/logger"
	"github.com/quantrex-lab/signalsim/internal/marketdata"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
)

// ProviderType identifies a market data provider.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
)

// ClientConfig configures the download client.
type ClientConfig struct {
	ProviderType  ProviderType `validate:"required,oneof=polygon"`
	DataPath      string       `validate:"required"`
	PolygonAPIKey string       `validate:"required_if=ProviderType polygon"`
}

// DownloadParams describes one download request.
type DownloadParams struct {
	Ticker     string           `validate:"required"`
	AssetClass types.AssetClass `validate:"required,oneof=stock crypto"`
	StartDate  time.Time        `validate:"required"`
	EndDate    time.Time        `validate:"required,gtfield=StartDate"`
}

// Client downloads bars from a provider and stores them in the local bar
// database at DataPath.
type Client struct {
	provider   Provider
	config     ClientConfig
	validate   *validator.Validate
	logger     *logger.Logger
	onProgress OnDownloadProgress
}

// NewClient creates a download client for the configured provider.
func NewClient(config ClientConfig, log *logger.Logger, onProgress OnDownloadProgress) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	var provider Provider

	switch config.ProviderType {
	case ProviderPolygon:
		polygonProvider, err := NewPolygonProvider(config.PolygonAPIKey)
		if err != nil {
			return nil, err
		}

		provider = polygonProvider
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported provider type: %s", config.ProviderType)
	}

	return &Client{
		provider:   provider,
		config:     config,
		validate:   validate,
		logger:     log,
		onProgress: onProgress,
	}, nil
}

// Download fetches bars for the requested range and writes them into the bar
// database. The downloaded series must be strictly ascending by date.
func (c *Client) Download(ctx context.Context, params DownloadParams) (int, error) {
	if err := c.validate.Struct(params); err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid download parameters", err)
	}

	bars, err := c.provider.Download(ctx, params.Ticker, params.StartDate, params.EndDate, c.onProgress)
	if err != nil {
		return 0, err
	}

	if len(bars) == 0 {
		return 0, errors.Newf(errors.ErrCodeDataNotFound, "provider returned no bars for %s", params.Ticker)
	}

	if err := marketdata.ValidateSeries(bars); err != nil {
		return 0, err
	}

	feed, err := marketdata.NewDuckDBFeed(c.config.DataPath, c.logger)
	if err != nil {
		return 0, err
	}
	defer feed.Close()

	if err := feed.InsertBars(ctx, params.AssetClass, bars); err != nil {
		return 0, err
	}

	return len(bars), nil
}
