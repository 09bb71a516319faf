// Package backtest drives a single walk-forward historical run: it iterates a
// price series day by day, retrains the predictive model on a schedule, applies
// signals through a ledger account, and derives performance metrics at the end.
package backtest

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/quantrex-lab/signalsim/internal/risk"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultTrainPeriodDays     = 365
	defaultRetrainIntervalDays = 30
)

// RunConfig parameterizes one backtest run.
type RunConfig struct {
	Symbol              string           `yaml:"symbol" json:"symbol" jsonschema:"title=Symbol,description=Ticker of the asset to backtest" validate:"required"`
	AssetClass          types.AssetClass `yaml:"asset_class" json:"asset_class" jsonschema:"title=Asset Class,description=Market the symbol trades in" validate:"required,oneof=stock crypto"`
	Model               string           `yaml:"model" json:"model" jsonschema:"title=Model,description=Name of the predictive model driving the run" validate:"required"`
	StartTime           time.Time        `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=First simulated day" validate:"required"`
	EndTime             time.Time        `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Last simulated day" validate:"required,gtfield=StartTime"`
	InitialCash         float64          `yaml:"initial_cash" json:"initial_cash" jsonschema:"title=Initial Cash,description=Starting cash in USD,minimum=0" validate:"gt=0"`
	TrainPeriodDays     int              `yaml:"train_period_days" json:"train_period_days" jsonschema:"title=Train Period Days,description=Trailing window of data each retrain uses" validate:"gte=1"`
	RetrainIntervalDays int              `yaml:"retrain_interval_days" json:"retrain_interval_days" jsonschema:"title=Retrain Interval Days,description=Days between model retrains" validate:"gte=1"`
	EnableTrailingStop  bool             `yaml:"enable_trailing_stop" json:"enable_trailing_stop" jsonschema:"title=Enable Trailing Stop,description=Exit positions when the trailing stop is hit"`
	Risk                risk.Profile     `yaml:"risk" json:"risk" jsonschema:"title=Risk,description=Risk profile for the trailing stop rules" validate:"required"`
}

// UnmarshalYAML fills defaults for fields the document omits.
func (c *RunConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawConfig struct {
		Symbol              string           `yaml:"symbol"`
		AssetClass          types.AssetClass `yaml:"asset_class"`
		Model               string           `yaml:"model"`
		StartTime           time.Time        `yaml:"start_time"`
		EndTime             time.Time        `yaml:"end_time"`
		InitialCash         float64          `yaml:"initial_cash"`
		TrainPeriodDays     *int             `yaml:"train_period_days"`
		RetrainIntervalDays *int             `yaml:"retrain_interval_days"`
		EnableTrailingStop  bool             `yaml:"enable_trailing_stop"`
		Risk                *risk.Profile    `yaml:"risk"`
	}

	var raw rawConfig
	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.Symbol = raw.Symbol
	c.AssetClass = raw.AssetClass
	c.Model = raw.Model
	c.StartTime = raw.StartTime
	c.EndTime = raw.EndTime
	c.InitialCash = raw.InitialCash
	c.EnableTrailingStop = raw.EnableTrailingStop

	c.TrainPeriodDays = defaultTrainPeriodDays
	if raw.TrainPeriodDays != nil {
		c.TrainPeriodDays = *raw.TrainPeriodDays
	}

	c.RetrainIntervalDays = defaultRetrainIntervalDays
	if raw.RetrainIntervalDays != nil {
		c.RetrainIntervalDays = *raw.RetrainIntervalDays
	}

	c.Risk = risk.DefaultProfile()
	if raw.Risk != nil {
		c.Risk = *raw.Risk
	}

	return nil
}

// ParseConfig parses and validates a YAML run configuration.
func ParseConfig(data []byte) (RunConfig, error) {
	var config RunConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return RunConfig{}, errors.Wrap(errors.ErrCodeBacktestConfig, "failed to parse run config", err)
	}

	if err := config.Validate(); err != nil {
		return RunConfig{}, err
	}

	return config, nil
}

// Validate checks the configuration against its declared constraints.
func (c *RunConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfig, "invalid run config", err)
	}

	return nil
}

// GenerateSchema generates a JSON schema for RunConfig.
func (c *RunConfig) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if strings.HasSuffix(t.String(), "types.AssetClass") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: []any{string(types.AssetClassStock), string(types.AssetClassCrypto)},
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)
	schema.Title = "backtest-run-config"
	schema.Description = "Configuration schema for a backtest run"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON generates an indented JSON schema string for RunConfig.
func (c *RunConfig) GenerateSchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(c.GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// TestConfig returns a valid config for tests.
func TestConfig(startTime, endTime time.Time) RunConfig {
	return RunConfig{
		Symbol:              "AAPL",
		AssetClass:          types.AssetClassStock,
		Model:               "sma_momentum",
		StartTime:           startTime,
		EndTime:             endTime,
		InitialCash:         10000,
		TrainPeriodDays:     defaultTrainPeriodDays,
		RetrainIntervalDays: defaultRetrainIntervalDays,
		Risk:                risk.DefaultProfile(),
	}
}
