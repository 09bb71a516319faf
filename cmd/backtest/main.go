package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/moznion/go-optional"
	"github.com/quantrex-lab/signalsim/internal/backtest"
	"github.com/quantrex-lab/signalsim/internal/logger"
	"github.com/quantrex-lab/signalsim/internal/marketdata"
	"github.com/quantrex-lab/signalsim/internal/predictor"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// backtestAction loads the run config, wires the feed and predictor, and
// executes the walk-forward run, writing the result to disk.
func backtestAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("schema") {
		schema, err := (&backtest.RunConfig{}).GenerateSchemaJSON()
		if err != nil {
			return err
		}

		fmt.Println(schema)

		return nil
	}

	log, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	configData, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read run config: %w", err)
	}

	config, err := backtest.ParseConfig(configData)
	if err != nil {
		return err
	}

	feed, err := marketdata.NewDuckDBFeed(cmd.String("data"), log)
	if err != nil {
		return err
	}
	defer feed.Close()

	backtester, err := backtest.NewBacktester(config, feed, predictor.NewMomentum(feed), log)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("Backtesting %s", config.Symbol)),
		progressbar.OptionShowCount(),
	)

	onDay := backtest.OnDayCallback(func(day, totalDays int, _ types.PerformanceSnapshot) {
		bar.ChangeMax(totalDays)
		bar.Set(day)
	})

	result, err := backtester.Run(ctx, optional.Some(onDay))
	if err != nil {
		return err
	}

	bar.Finish()

	outputPath := cmd.String("output")
	if err := types.WriteBacktestResult(outputPath, result); err != nil {
		return err
	}

	fmt.Printf("\nFinal balance: %.2f (return %.2f%%, sharpe %.2f, max drawdown %.2f%%)\n",
		result.FinalBalance, result.TotalReturn, result.SharpeRatio, result.MaxDrawdown)
	fmt.Printf("Result written to %s\n", outputPath)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run a walk-forward backtest over the local bar database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML run configuration",
				Value:   "backtest.yaml",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Path to the bar database file",
				Value:   "data/bars.db",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Path to write the result YAML to",
				Value:   "result.yaml",
			},
			&cli.BoolFlag{
				Name:  "schema",
				Usage: "Print the JSON schema of the run configuration and exit",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
