// Package engine wires candles through the per-symbol pipeline: indicators,
// signal generation, risk gating, sizing, and position lifecycle.
package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/execution"
	"github.com/ugurhss/3x-trading-bot/internal/indicator"
	"github.com/ugurhss/3x-trading-bot/internal/market"
	"github.com/ugurhss/3x-trading-bot/internal/position"
	"github.com/ugurhss/3x-trading-bot/internal/risk"
	"github.com/ugurhss/3x-trading-bot/internal/strategy"
)

// Marker is implemented by gateways that want per-candle valuation marks
// (the paper account uses them to compute equity).
type Marker interface {
	Mark(symbol string, price float64)
}

// Config collects the collaborators shared by every symbol pipeline.
type Config struct {
	Symbols    []string
	Indicators *indicator.Engine
	Strategy   strategy.Strategy
	Sizer      *risk.Sizer
	Risk       *risk.Manager
	Positions  *position.Manager
	Gateway    execution.Gateway
	Log        zerolog.Logger
}

// Engine owns one pipeline per configured symbol. Pipelines share the risk
// manager (and through it the account-level circuit breaker) but nothing
// else: candle windows and position state stay disjoint per symbol.
type Engine struct {
	cfg       Config
	pipelines map[string]*Pipeline
}

// New builds an engine with one pipeline per symbol.
func New(cfg Config) *Engine {
	e := &Engine{cfg: cfg, pipelines: make(map[string]*Pipeline, len(cfg.Symbols))}
	for _, sym := range cfg.Symbols {
		e.pipelines[sym] = newPipeline(sym, cfg)
	}
	return e
}

// Pipeline returns the pipeline trading a symbol, if configured.
func (e *Engine) Pipeline(symbol string) (*Pipeline, bool) {
	p, ok := e.pipelines[symbol]
	return p, ok
}

// RiskState exposes the circuit-breaker state per symbol for monitoring.
func (e *Engine) RiskState() map[string]risk.State {
	out := make(map[string]risk.State, len(e.pipelines))
	for sym := range e.pipelines {
		out[sym] = e.cfg.Risk.StateFor(sym)
	}
	return out
}

// Run consumes candles until the context is canceled or the channel closes.
// Candles fan out to per-symbol workers so symbols progress concurrently
// while each symbol's candles stay strictly ordered. Cancellation drains:
// workers finish the candle in hand before returning, using a detached
// context so shutdown does not abort an in-flight order.
func (e *Engine) Run(ctx context.Context, in <-chan market.Candle) error {
	work := make(map[string]chan market.Candle, len(e.pipelines))
	var wg sync.WaitGroup
	drainCtx := context.WithoutCancel(ctx)

	for sym, p := range e.pipelines {
		ch := make(chan market.Candle, 64)
		work[sym] = ch
		wg.Add(1)
		go func(p *Pipeline, ch <-chan market.Candle) {
			defer wg.Done()
			for c := range ch {
				p.OnCandle(drainCtx, c)
			}
		}(p, ch)
	}
	defer func() {
		for _, ch := range work {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				return nil
			}
			ch := work[c.Symbol]
			if ch == nil {
				e.cfg.Log.Debug().Str("sym", c.Symbol).Msg("candle for untraded symbol dropped")
				continue
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// RunSequential replays candles on the calling goroutine, in arrival order.
// Backtests use it so results are deterministic.
func (e *Engine) RunSequential(ctx context.Context, in <-chan market.Candle) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				return nil
			}
			if p := e.pipelines[c.Symbol]; p != nil {
				p.OnCandle(ctx, c)
			}
		}
	}
}
