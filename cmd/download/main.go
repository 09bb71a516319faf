package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/quantrex-lab/signalsim/internal/logger"
	"github.com/quantrex-lab/signalsim/internal/types"
	"github.com/quantrex-lab/signalsim/pkg/marketdata"
	"github.com/urfave/cli/v3"
)

// downloadAction parses the flags, builds the download client, and runs the
// download into the local bar database.
func downloadAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	clientConfig := marketdata.ClientConfig{
		ProviderType:  marketdata.ProviderType(cmd.String("provider")),
		DataPath:      cmd.String("data"),
		PolygonAPIKey: os.Getenv("POLYGON_API_KEY"),
	}

	client, err := marketdata.NewClient(clientConfig, log, nil)
	if err != nil {
		return fmt.Errorf("failed to create market data client: %w", err)
	}

	params := marketdata.DownloadParams{
		Ticker:     cmd.String("ticker"),
		AssetClass: types.AssetClass(cmd.String("asset-class")),
		StartDate:  cmd.Timestamp("start"),
		EndDate:    cmd.Timestamp("end"),
	}

	count, err := client.Download(ctx, params)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Printf("Downloaded %d bars for %s into %s\n", count, params.Ticker, clientConfig.DataPath)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "download",
		Usage: "Download historical daily bars into the local bar database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "ticker",
				Aliases:  []string{"t"},
				Usage:    "Ticker symbol to download",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "asset-class",
				Aliases: []string{"a"},
				Usage:   "Asset class of the ticker (stock or crypto)",
				Value:   string(types.AssetClassStock),
			},
			&cli.TimestampFlag{
				Name:     "start",
				Aliases:  []string{"s"},
				Usage:    "Start date in `YYYY-MM-DD` format",
				Required: true,
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.TimestampFlag{
				Name:    "end",
				Aliases: []string{"e"},
				Usage:   "End date in `YYYY-MM-DD` format. Defaults to today.",
				Value:   time.Now(),
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   fmt.Sprintf("Data provider to use (e.g., %s)", marketdata.ProviderPolygon),
				Value:   string(marketdata.ProviderPolygon),
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Path to the bar database file",
				Value:   "data/bars.db",
			},
		},
		Action: downloadAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
