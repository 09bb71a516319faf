// Package predictor defines the contract for the predictive model that drives
// trading decisions, plus a deterministic momentum reference model.
package predictor

import (
	"context"
	"time"

	"github.com/quantrex-lab/signalsim/internal/types"
)

// Predictor is the narrow contract the engine consumes a predictive model
// through. Implementations own their training data and model storage; the
// engine never sees either.
type Predictor interface {
	// Train fits a model for symbol on the last lookback days of data and
	// returns the training loss. Fails with an ErrCodeTraining error when the
	// data cannot be fetched or is insufficient.
	Train(ctx context.Context, symbol string, assetClass types.AssetClass, lookback int) (float64, error)
	// ModelExists reports whether a trained model is available for symbol.
	ModelExists(symbol string, assetClass types.AssetClass) bool
	// ModelAge returns how long ago the model for symbol was trained.
	// Zero when no model exists.
	ModelAge(symbol string, assetClass types.AssetClass) time.Duration
	// Predict produces a signal for symbol from the trained model. Fails with
	// ErrCodeModelNotFound when no model has been trained.
	Predict(ctx context.Context, symbol string, assetClass types.AssetClass) (types.Signal, error)
}
