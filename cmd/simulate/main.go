package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/quantrex-lab/signalsim/internal/logger"
	"github.com/quantrex-lab/signalsim/internal/marketdata"
	"github.com/quantrex-lab/signalsim/internal/predictor"
	"github.com/quantrex-lab/signalsim/internal/risk"
	"github.com/quantrex-lab/signalsim/internal/simulator"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"
)

// appContext holds the wired collaborators shared by every subcommand.
type appContext struct {
	simulator *simulator.Simulator
	model     *predictor.Momentum
	cleanup   func()
}

func buildApp(cmd *cli.Command) (*appContext, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := simulator.NewDuckDBStore(cmd.String("ledger"), log)
	if err != nil {
		return nil, err
	}

	feed, err := marketdata.NewDuckDBFeed(cmd.String("data"), log)
	if err != nil {
		store.Close()

		return nil, err
	}

	model := predictor.NewMomentum(feed)

	return &appContext{
		simulator: simulator.New(store, feed, model, risk.DefaultProfile(), log),
		model:     model,
		cleanup: func() {
			store.Close()
			feed.Close()
			log.Sync()
		},
	}, nil
}

func createAccountAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.cleanup()

	record, err := app.simulator.CreateAccount(ctx, cmd.String("owner"), cmd.String("name"),
		decimal.NewFromFloat(cmd.Float("cash")))
	if err != nil {
		return err
	}

	fmt.Printf("Created account %s with %s cash\n", record.ID, record.Cash.String())

	return nil
}

func buyAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.cleanup()

	trade, err := app.simulator.Buy(ctx, cmd.String("account"), cmd.String("symbol"),
		decimal.NewFromFloat(cmd.Float("quantity")), decimal.NewFromFloat(cmd.Float("price")))
	if err != nil {
		return err
	}

	fmt.Printf("Bought %s %s at %s (%s total)\n",
		trade.Quantity.String(), trade.Symbol, trade.Price.String(), trade.Amount.String())

	return nil
}

func sellAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.cleanup()

	trade, err := app.simulator.Sell(ctx, cmd.String("account"), cmd.String("symbol"),
		decimal.NewFromFloat(cmd.Float("quantity")), decimal.NewFromFloat(cmd.Float("price")))
	if err != nil {
		return err
	}

	fmt.Printf("Sold %s %s at %s (%s total)\n",
		trade.Quantity.String(), trade.Symbol, trade.Price.String(), trade.Amount.String())

	return nil
}

func performanceAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.cleanup()

	report, err := app.simulator.Performance(ctx, cmd.String("account"))
	if err != nil {
		return err
	}

	fmt.Printf("Account %s\n", report.AccountID)
	fmt.Printf("  initial cash:    %s\n", report.InitialCash.String())
	fmt.Printf("  current cash:    %s\n", report.CurrentCash.String())
	fmt.Printf("  portfolio value: %s\n", report.PortfolioValue.String())
	fmt.Printf("  total return:    %.2f%%\n", report.TotalReturnPct)

	return nil
}

// runAction trains the momentum model once, then replays the most recent bars
// against the account, trading on each day's signal.
func runAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.cleanup()

	symbol := cmd.String("symbol")
	assetClass := types.AssetClass(cmd.String("asset-class"))

	if _, err := app.model.Train(ctx, symbol, assetClass, int(cmd.Int("lookback"))); err != nil {
		return err
	}

	outcomes, err := app.simulator.SimulatePeriod(ctx, cmd.String("account"), symbol, assetClass, int(cmd.Int("days")))
	if err != nil {
		return err
	}

	for i, outcome := range outcomes {
		switch {
		case outcome.Trade.IsSome():
			trade := outcome.Trade.Unwrap()
			fmt.Printf("day %d: %s %s %s at %s\n", i+1, outcome.Status, trade.Side, trade.Quantity.String(), trade.Price.String())
		case outcome.Reason != "":
			fmt.Printf("day %d: %s (%s)\n", i+1, outcome.Status, outcome.Reason)
		default:
			fmt.Printf("day %d: %s\n", i+1, outcome.Status)
		}
	}

	report, err := app.simulator.Performance(ctx, cmd.String("account"))
	if err != nil {
		return err
	}

	fmt.Printf("Portfolio value: %s (return %.2f%%)\n", report.PortfolioValue.String(), report.TotalReturnPct)

	return nil
}

func main() {
	sharedFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "ledger",
			Usage: "Path to the ledger database file",
			Value: "data/ledger.db",
		},
		&cli.StringFlag{
			Name:    "data",
			Aliases: []string{"d"},
			Usage:   "Path to the bar database file",
			Value:   "data/bars.db",
		},
	}

	accountFlag := &cli.StringFlag{
		Name:     "account",
		Usage:    "Account id",
		Required: true,
	}

	orderFlags := append([]cli.Flag{
		accountFlag,
		&cli.StringFlag{
			Name:     "symbol",
			Usage:    "Ticker symbol",
			Required: true,
		},
		&cli.FloatFlag{
			Name:     "quantity",
			Usage:    "Quantity to trade",
			Required: true,
		},
		&cli.FloatFlag{
			Name:     "price",
			Usage:    "Price to trade at",
			Required: true,
		},
	}, sharedFlags...)

	cmd := &cli.Command{
		Name:  "simulate",
		Usage: "Manage persisted simulated trading accounts",
		Commands: []*cli.Command{
			{
				Name:  "create-account",
				Usage: "Open a new simulated account",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "owner",
						Usage:    "Owner id for the account",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name for the account",
						Value: "paper",
					},
					&cli.FloatFlag{
						Name:  "cash",
						Usage: "Initial cash",
						Value: 10000,
					},
				}, sharedFlags...),
				Action: createAccountAction,
			},
			{
				Name:   "buy",
				Usage:  "Buy a quantity at a price",
				Flags:  orderFlags,
				Action: buyAction,
			},
			{
				Name:   "sell",
				Usage:  "Sell a quantity at a price",
				Flags:  orderFlags,
				Action: sellAction,
			},
			{
				Name:   "performance",
				Usage:  "Report an account's performance",
				Flags:  append([]cli.Flag{accountFlag}, sharedFlags...),
				Action: performanceAction,
			},
			{
				Name:  "run",
				Usage: "Replay recent bars against an account, trading on signals",
				Flags: append([]cli.Flag{
					accountFlag,
					&cli.StringFlag{
						Name:     "symbol",
						Usage:    "Ticker symbol to trade",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "asset-class",
						Aliases: []string{"a"},
						Usage:   "Asset class of the symbol (stock or crypto)",
						Value:   string(types.AssetClassStock),
					},
					&cli.IntFlag{
						Name:  "days",
						Usage: "Number of recent bars to replay",
						Value: 30,
					},
					&cli.IntFlag{
						Name:  "lookback",
						Usage: "Days of data to train the model on",
						Value: 365,
					},
				}, sharedFlags...),
				Action: runAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
