// Package backtest replays historical candles through the same engine the
// live bot runs and summarizes the resulting trades.
package backtest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/config"
	"github.com/ugurhss/3x-trading-bot/internal/engine"
	"github.com/ugurhss/3x-trading-bot/internal/indicator"
	"github.com/ugurhss/3x-trading-bot/internal/market"
	"github.com/ugurhss/3x-trading-bot/internal/paper"
	"github.com/ugurhss/3x-trading-bot/internal/position"
	"github.com/ugurhss/3x-trading-bot/internal/risk"
	"github.com/ugurhss/3x-trading-bot/internal/strategy"
)

// collector captures closed trades alongside the risk manager.
type collector struct {
	mu     sync.Mutex
	trades []position.TradeResult
}

func (c *collector) Record(res position.TradeResult, _ time.Time) {
	c.mu.Lock()
	c.trades = append(c.trades, res)
	c.mu.Unlock()
}

func (c *collector) snapshot() []position.TradeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]position.TradeResult, len(c.trades))
	copy(out, c.trades)
	return out
}

// multiRecorder fans one trade result out to several consumers.
type multiRecorder []position.Recorder

func (m multiRecorder) Record(res position.TradeResult, now time.Time) {
	for _, r := range m {
		r.Record(res, now)
	}
}

// Runner assembles a paper account, risk manager, and engine from the
// configuration and replays CSV candles through them.
type Runner struct {
	cfg *config.Config
	dir string
	log zerolog.Logger
}

// NewRunner builds a runner replaying candles from dir (falling back to the
// configured csv_dir).
func NewRunner(cfg *config.Config, dir string, log zerolog.Logger) *Runner {
	if dir == "" {
		dir = cfg.Exchange.CSVDir
	}
	return &Runner{cfg: cfg, dir: dir, log: log}
}

// Run replays every configured symbol's file and returns the summary.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cfg := r.cfg
	account := paper.NewAccount(cfg.Paper.StartingCash, cfg.Risk.Leverage, cfg.Risk.CommissionRate)
	gateway := paper.NewGateway(account, paper.NewLedger(256), r.log)

	pause := time.Duration(cfg.Risk.PauseHours * float64(time.Hour))
	riskMgr := risk.NewManager(cfg.Risk.MaxConsecutiveLosses, pause, risk.Scope(cfg.Risk.Scope), r.log)
	trades := &collector{}

	strat := strategy.Build(cfg.Strategy.Mode, strategy.Params{
		RSIOversold:      cfg.Strategy.RSIOversold,
		RSIOverbought:    cfg.Strategy.RSIOverbought,
		VolumeMultiplier: cfg.Strategy.VolumeMultiplier,
		ConfirmationBars: cfg.Strategy.ConfirmationBars,
	}, riskMgr, r.log)

	positions := position.NewManager(position.Config{
		TakeProfit:       cfg.Risk.TakeProfit,
		StopLoss:         cfg.Risk.StopLoss,
		TrailingTrigger:  cfg.Risk.TrailingTrigger,
		TrailingDistance: cfg.Risk.TrailingDistance,
		RSIExitLong:      cfg.Strategy.RSIOverbought,
		RSIExitShort:     cfg.Strategy.RSIOversold,
		Leverage:         cfg.Risk.Leverage,
		CommissionRate:   cfg.Risk.CommissionRate,
	}, gateway, multiRecorder{riskMgr, trades}, r.log)

	eng := engine.New(engine.Config{
		Symbols:    cfg.Exchange.Symbols,
		Indicators: indicator.NewEngine(cfg.Strategy.RSIPeriod, cfg.Strategy.VolumePeriod),
		Strategy:   strat,
		Sizer:      risk.NewSizer(cfg.Risk.RiskPerTrade, cfg.Risk.StopLoss, cfg.Risk.Leverage),
		Risk:       riskMgr,
		Positions:  positions,
		Gateway:    gateway,
		Log:        r.log,
	})

	feed := market.NewFeed(market.ProviderCSV, cfg.Exchange.Symbols, r.log, market.WithCSVDir(r.dir))
	candles := make(chan market.Candle, 256)

	feedErr := make(chan error, 1)
	go func() {
		defer close(candles)
		feedErr <- feed.Run(ctx, candles)
	}()

	if err := eng.RunSequential(ctx, candles); err != nil {
		return nil, err
	}
	if err := <-feedErr; err != nil && ctx.Err() == nil {
		return nil, err
	}

	result := computeResult(trades.snapshot(), cfg.Paper.StartingCash)
	result.FinalEquity = account.Equity()
	return result, nil
}
