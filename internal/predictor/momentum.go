package predictor

import (
	"context"
	"math"
	"time"

	"github.com/quantrex-lab/signalsim/internal/marketdata"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
)

const (
	momentumModelName = "sma_momentum"
	fastWindow        = 10
	slowWindow        = 30
	// buyThreshold is the forecast change (percent) above which the model
	// recommends buying, and below whose negative it recommends selling.
	buyThreshold = 0.5
)

type momentumModel struct {
	fastSMA   float64
	slowSMA   float64
	lastClose float64
	loss      float64
	trainedAt time.Time
}

// Momentum is a self-contained reference model: it forecasts the next close
// from the spread between a fast and a slow moving average. It exists so the
// CLIs and tests have a real Predictor; it makes no claim to predictive power.
type Momentum struct {
	feed   marketdata.Feed
	now    func() time.Time
	models map[string]momentumModel
}

// NewMomentum creates a momentum predictor backed by feed.
func NewMomentum(feed marketdata.Feed) *Momentum {
	return &Momentum{
		feed:   feed,
		now:    time.Now,
		models: make(map[string]momentumModel),
	}
}

func modelKey(symbol string, assetClass types.AssetClass) string {
	return symbol + "/" + string(assetClass)
}

// Train implements Predictor. The training loss is the mean absolute
// percentage error of a one-step persistence forecast over the window.
func (m *Momentum) Train(ctx context.Context, symbol string, assetClass types.AssetClass, lookback int) (float64, error) {
	if lookback < slowWindow {
		return 0, errors.Newf(errors.ErrCodeTraining,
			"lookback %d is shorter than the slow window %d", lookback, slowWindow)
	}

	end := m.now()
	start := end.AddDate(0, 0, -lookback)

	bars, err := m.feed.Fetch(ctx, symbol, assetClass, start, end)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeTraining, err, "failed to fetch training data for %s", symbol)
	}

	if len(bars) < slowWindow {
		return 0, errors.Newf(errors.ErrCodeTraining,
			"need at least %d bars to train, got %d", slowWindow, len(bars))
	}

	loss := 0.0
	for i := 1; i < len(bars); i++ {
		loss += math.Abs(bars[i].Close-bars[i-1].Close) / bars[i-1].Close
	}
	loss /= float64(len(bars) - 1)

	m.models[modelKey(symbol, assetClass)] = momentumModel{
		fastSMA:   sma(bars, fastWindow),
		slowSMA:   sma(bars, slowWindow),
		lastClose: bars[len(bars)-1].Close,
		loss:      loss,
		trainedAt: m.now(),
	}

	return loss, nil
}

// ModelExists implements Predictor.
func (m *Momentum) ModelExists(symbol string, assetClass types.AssetClass) bool {
	_, ok := m.models[modelKey(symbol, assetClass)]

	return ok
}

// ModelAge implements Predictor.
func (m *Momentum) ModelAge(symbol string, assetClass types.AssetClass) time.Duration {
	model, ok := m.models[modelKey(symbol, assetClass)]
	if !ok {
		return 0
	}

	return m.now().Sub(model.trainedAt)
}

// Predict implements Predictor.
func (m *Momentum) Predict(ctx context.Context, symbol string, assetClass types.AssetClass) (types.Signal, error) {
	model, ok := m.models[modelKey(symbol, assetClass)]
	if !ok {
		return types.Signal{}, errors.Newf(errors.ErrCodeModelNotFound, "no trained model for %s", symbol)
	}

	// Refresh the current price so repeated predictions track the market.
	lastBar, err := m.feed.LastBar(ctx, symbol, assetClass)
	if err != nil {
		return types.Signal{}, errors.Wrapf(errors.ErrCodePrediction, err, "failed to read last bar for %s", symbol)
	}

	momentum := 0.0
	if model.slowSMA > 0 {
		momentum = (model.fastSMA - model.slowSMA) / model.slowSMA
	}

	currentPrice := lastBar.Close
	predictedPrice := currentPrice * (1 + momentum)
	changePercent := momentum * 100

	trend := types.TrendFlat
	recommendation := types.RecommendationHold

	switch {
	case changePercent > buyThreshold:
		trend = types.TrendUp
		recommendation = types.RecommendationBuy
	case changePercent < -buyThreshold:
		trend = types.TrendDown
		recommendation = types.RecommendationSell
	}

	confidence := math.Min(1, math.Abs(changePercent)/5)

	return types.Signal{
		Symbol:         symbol,
		CurrentPrice:   currentPrice,
		PredictedPrice: predictedPrice,
		ChangePercent:  changePercent,
		Trend:          trend,
		Recommendation: recommendation,
		Confidence:     confidence,
		ModelName:      momentumModelName,
	}, nil
}

// sma averages the closes of the trailing window bars.
func sma(bars []types.MarketData, window int) float64 {
	if window > len(bars) {
		window = len(bars)
	}

	sum := 0.0
	for _, bar := range bars[len(bars)-window:] {
		sum += bar.Close
	}

	return sum / float64(window)
}
