package main

import (
	"context"
	"flag"
	"os"

	"github.com/ugurhss/3x-trading-bot/internal/backtest"
	"github.com/ugurhss/3x-trading-bot/internal/config"
	"github.com/ugurhss/3x-trading-bot/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to yaml configuration")
	dataDir := flag.String("data", "", "directory of <SYMBOL>.csv candle files (defaults to exchange.csv_dir)")
	tradesOut := flag.String("out", "", "optional path for a trades CSV export")
	flag.Parse()

	log := util.NewConsoleLogger("warn")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	runner := backtest.NewRunner(cfg, *dataDir, log)
	result, err := runner.Run(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	result.Render(os.Stdout)
	if *tradesOut != "" {
		if err := result.WriteTradesCSV(*tradesOut); err != nil {
			log.Fatal().Err(err).Msg("write trades csv")
		}
	}
}
