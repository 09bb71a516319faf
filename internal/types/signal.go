package types

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

type Recommendation string

const (
	RecommendationBuy  Recommendation = "buy"
	RecommendationSell Recommendation = "sell"
	RecommendationHold Recommendation = "hold"
)

// Signal is the output of a predictive model for one symbol.
type Signal struct {
	// Symbol is the symbol the signal applies to.
	Symbol string `yaml:"symbol" json:"symbol"`
	// CurrentPrice is the last observed price when the signal was produced.
	CurrentPrice float64 `yaml:"current_price" json:"current_price"`
	// PredictedPrice is the model's price forecast.
	PredictedPrice float64 `yaml:"predicted_price" json:"predicted_price"`
	// ChangePercent is the forecast change relative to the current price.
	ChangePercent float64 `yaml:"change_percent" json:"change_percent"`
	// Trend is the direction implied by the forecast.
	Trend Trend `yaml:"trend" json:"trend"`
	// Recommendation is the suggested action.
	Recommendation Recommendation `yaml:"recommendation" json:"recommendation"`
	// Confidence is the model's confidence in [0, 1].
	Confidence float64 `yaml:"confidence" json:"confidence"`
	// ModelName identifies the model that produced the signal.
	ModelName string `yaml:"model_name" json:"model_name"`
}
