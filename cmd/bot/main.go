package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ugurhss/3x-trading-bot/internal/config"
	"github.com/ugurhss/3x-trading-bot/internal/engine"
	"github.com/ugurhss/3x-trading-bot/internal/execution"
	"github.com/ugurhss/3x-trading-bot/internal/indicator"
	"github.com/ugurhss/3x-trading-bot/internal/market"
	"github.com/ugurhss/3x-trading-bot/internal/metrics"
	"github.com/ugurhss/3x-trading-bot/internal/paper"
	"github.com/ugurhss/3x-trading-bot/internal/position"
	"github.com/ugurhss/3x-trading-bot/internal/risk"
	"github.com/ugurhss/3x-trading-bot/internal/strategy"
	"github.com/ugurhss/3x-trading-bot/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to yaml configuration")
	dryRun := flag.Bool("dry-run", false, "log orders instead of filling a paper account")
	flag.Parse()

	// Credentials live in .env during development; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pause := time.Duration(cfg.Risk.PauseHours * float64(time.Hour))
	riskMgr := risk.NewManager(cfg.Risk.MaxConsecutiveLosses, pause, risk.Scope(cfg.Risk.Scope), log)

	var gateway execution.Gateway
	var recorder *paper.JSONLRecorder
	if *dryRun {
		gateway = execution.NewLogGateway(log, cfg.Paper.StartingCash)
	} else {
		account := paper.NewAccount(cfg.Paper.StartingCash, cfg.Risk.Leverage, cfg.Risk.CommissionRate)
		gateway = paper.NewGateway(account, paper.NewLedger(256), log)
	}

	recorders := []position.Recorder{riskMgr}
	if cfg.Paper.TradesPath != "" {
		recorder, err = paper.NewJSONLRecorder(cfg.Paper.TradesPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open trade recorder")
		}
		defer recorder.Close()
		recorders = append(recorders, tradeSink{recorder})
	}

	strat := strategy.Build(cfg.Strategy.Mode, strategy.Params{
		RSIOversold:      cfg.Strategy.RSIOversold,
		RSIOverbought:    cfg.Strategy.RSIOverbought,
		VolumeMultiplier: cfg.Strategy.VolumeMultiplier,
		ConfirmationBars: cfg.Strategy.ConfirmationBars,
	}, riskMgr, log)

	positions := position.NewManager(position.Config{
		TakeProfit:       cfg.Risk.TakeProfit,
		StopLoss:         cfg.Risk.StopLoss,
		TrailingTrigger:  cfg.Risk.TrailingTrigger,
		TrailingDistance: cfg.Risk.TrailingDistance,
		RSIExitLong:      cfg.Strategy.RSIOverbought,
		RSIExitShort:     cfg.Strategy.RSIOversold,
		Leverage:         cfg.Risk.Leverage,
		CommissionRate:   cfg.Risk.CommissionRate,
	}, gateway, multiRecorder(recorders), log)

	indicators := indicator.NewEngine(cfg.Strategy.RSIPeriod, cfg.Strategy.VolumePeriod)

	eng := engine.New(engine.Config{
		Symbols:    cfg.Exchange.Symbols,
		Indicators: indicators,
		Strategy:   strat,
		Sizer:      risk.NewSizer(cfg.Risk.RiskPerTrade, cfg.Risk.StopLoss, cfg.Risk.Leverage),
		Risk:       riskMgr,
		Positions:  positions,
		Gateway:    gateway,
		Log:        log,
	})

	preload := cfg.Exchange.Preload
	if preload <= 0 {
		preload = indicators.Lookback()
	}
	feed := market.NewFeed(cfg.Exchange.Provider, cfg.Exchange.Symbols, log,
		market.WithInterval(cfg.Exchange.Interval),
		market.WithPreload(preload),
		market.WithCSVDir(cfg.Exchange.CSVDir),
	)

	candles := make(chan market.Candle, 1024)
	go func() {
		defer close(candles)
		if err := feed.Run(ctx, candles); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()

	log.Info().Str("name", cfg.App.Name).Strs("symbols", cfg.Exchange.Symbols).Msg("trading engine started")
	if err := eng.Run(ctx, candles); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("engine stopped")
	}
	log.Info().Msg("shutting down")
}

// tradeSink adapts the JSONL recorder to the position.Recorder interface.
type tradeSink struct{ rec *paper.JSONLRecorder }

func (s tradeSink) Record(res position.TradeResult, _ time.Time) { s.rec.Record(res) }

// multiRecorder fans one trade result out to several consumers.
type multiRecorder []position.Recorder

func (m multiRecorder) Record(res position.TradeResult, now time.Time) {
	for _, r := range m {
		r.Record(res, now)
	}
}
