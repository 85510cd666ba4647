package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/indicator"
	"github.com/ugurhss/3x-trading-bot/internal/market"
	"github.com/ugurhss/3x-trading-bot/internal/metrics"
	"github.com/ugurhss/3x-trading-bot/internal/position"
	"github.com/ugurhss/3x-trading-bot/internal/risk"
	"github.com/ugurhss/3x-trading-bot/internal/strategy"
)

// Status is the externally observable state of one symbol's pipeline.
type Status struct {
	Symbol    string
	Phase     string
	Halted    bool
	Window    int
	RiskState risk.State
}

// Pipeline processes one symbol's candle sequence. A pipeline is never
// invoked concurrently; the engine serializes candles per symbol.
type Pipeline struct {
	symbol string
	cfg    Config
	guard  *market.StreamGuard
	window []market.Candle
	log    zerolog.Logger
}

func newPipeline(symbol string, cfg Config) *Pipeline {
	return &Pipeline{
		symbol: symbol,
		cfg:    cfg,
		guard:  market.NewStreamGuard(),
		window: make([]market.Candle, 0, cfg.Indicators.Lookback()),
		log:    cfg.Log.With().Str("sym", symbol).Logger(),
	}
}

// OnCandle runs one tick of the pipeline. Every failure short of an
// execution halt resolves to no-action so one bad tick never stops the
// loop for other symbols.
func (p *Pipeline) OnCandle(ctx context.Context, c market.Candle) {
	if c.Symbol != p.symbol {
		return
	}
	if !c.Closed {
		return
	}
	if err := p.guard.Admit(c); err != nil {
		metrics.StaleCandlesTotal.WithLabelValues(p.symbol).Inc()
		p.log.Debug().Time("open_time", c.OpenTime).Msg("stale candle skipped")
		return
	}

	p.push(c)
	if marker, ok := p.cfg.Gateway.(Marker); ok {
		marker.Mark(c.Symbol, c.Close)
	}

	snap, ready := p.cfg.Indicators.Compute(p.window)
	var snapRef *indicator.Snapshot
	if ready {
		snapRef = &snap
	}

	// Exits first: an open position is evaluated on every candle even while
	// the indicator window is still warming up.
	res, err := p.cfg.Positions.OnCandle(ctx, c, snapRef)
	if err != nil {
		p.log.Error().Err(err).Msg("exit handling failed")
		return
	}
	if res != nil {
		p.cfg.Strategy.NotifyClosed(p.symbol)
		// The candle that closes a trade never also opens one; entries
		// resume on the next candle.
		return
	}

	if !ready {
		return
	}
	sig := p.cfg.Strategy.OnSnapshot(snap, c.OpenTime)
	if sig != strategy.EnterLong && sig != strategy.EnterShort {
		return
	}
	p.enter(ctx, sig, c)
}

func (p *Pipeline) enter(ctx context.Context, sig strategy.Signal, c market.Candle) {
	equity, err := p.cfg.Gateway.Equity(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("equity unavailable, entry skipped")
		return
	}
	qty, capped, err := p.cfg.Sizer.Quantity(equity, c.Close)
	if err != nil {
		if errors.Is(err, risk.ErrInsufficientEquity) {
			p.log.Warn().Float64("equity", equity).Msg("insufficient equity, entry skipped")
		} else {
			p.log.Warn().Err(err).Msg("sizing failed, entry skipped")
		}
		return
	}
	if capped {
		p.log.Warn().Float64("qty", qty).Msg("quantity capped by leverage margin limit")
	}

	pos, err := p.cfg.Positions.TryOpen(ctx, sig, qty, c)
	switch {
	case err == nil:
		p.cfg.Strategy.NotifyFilled(p.symbol)
		p.log.Debug().Float64("qty", pos.Qty).Msg("entry accepted")
	case errors.Is(err, position.ErrPositionOpen):
		p.log.Debug().Msg("entry skipped, position already open")
	case errors.Is(err, position.ErrSymbolHalted):
		p.log.Warn().Msg("entry skipped, symbol halted")
	default:
		p.log.Error().Err(err).Msg("entry failed")
	}
}

// push appends the candle and trims the window to the indicator lookback so
// identical windows always produce identical snapshots.
func (p *Pipeline) push(c market.Candle) {
	p.window = append(p.window, c)
	if max := p.cfg.Indicators.Lookback(); len(p.window) > max {
		p.window = p.window[len(p.window)-max:]
	}
}

// Status reports the pipeline state for monitoring endpoints and logs.
func (p *Pipeline) Status() Status {
	return Status{
		Symbol:    p.symbol,
		Phase:     p.cfg.Strategy.Status(p.symbol),
		Halted:    p.cfg.Positions.Halted(p.symbol),
		Window:    len(p.window),
		RiskState: p.cfg.Risk.StateFor(p.symbol),
	}
}
