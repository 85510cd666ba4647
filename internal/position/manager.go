package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/execution"
	"github.com/ugurhss/3x-trading-bot/internal/indicator"
	"github.com/ugurhss/3x-trading-bot/internal/market"
	"github.com/ugurhss/3x-trading-bot/internal/metrics"
	"github.com/ugurhss/3x-trading-bot/internal/strategy"
)

var (
	// ErrPositionOpen rejects an entry while the symbol already holds one.
	ErrPositionOpen = errors.New("position already open")
	// ErrSymbolHalted rejects trading on a symbol that needs manual reconciliation.
	ErrSymbolHalted = errors.New("symbol halted after execution failure")
	// ErrExecutionFailure marks a submission that stayed unconfirmed after retries.
	ErrExecutionFailure = errors.New("order execution failed")
)

// Config carries the exit rules and execution tuning for the manager.
type Config struct {
	TakeProfit float64 // fraction of entry, e.g. 0.06
	StopLoss   float64 // fraction of entry, e.g. 0.03
	// TrailingTrigger arms the trailing stop once unrealized profit reaches
	// this fraction; TrailingDistance is the giveback from the high water.
	// Zero trigger disables trailing.
	TrailingTrigger  float64
	TrailingDistance float64
	// RSIExitLong closes longs when RSI reaches this bound (0 disables);
	// RSIExitShort mirrors for shorts.
	RSIExitLong  float64
	RSIExitShort float64
	Leverage     int
	// CommissionRate is the taker fee charged on each leg's notional.
	CommissionRate float64
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Manager runs the NONE -> OPEN -> NONE lifecycle per symbol. All venue
// traffic goes through the gateway; a submission that cannot be confirmed
// halts the symbol rather than leaving state ambiguous.
type Manager struct {
	cfg     Config
	gateway execution.Gateway
	results Recorder
	log     zerolog.Logger

	mu     sync.Mutex
	open   map[string]*Position
	halted map[string]bool
}

// NewManager wires the lifecycle manager to a gateway and a result recorder.
func NewManager(cfg Config, gateway execution.Gateway, results Recorder, log zerolog.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	return &Manager{
		cfg:     cfg,
		gateway: gateway,
		results: results,
		log:     log,
		open:    make(map[string]*Position),
		halted:  make(map[string]bool),
	}
}

// Open returns the current position for a symbol, if any.
func (m *Manager) Open(symbol string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.open[symbol]; p != nil {
		return *p, true
	}
	return Position{}, false
}

// Halted reports whether the symbol is shut down pending manual reconciliation.
func (m *Manager) Halted(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted[symbol]
}

// TryOpen accepts an entry signal with a sized quantity and opens a position
// at the candle close, deriving direction-aware stop and target prices.
func (m *Manager) TryOpen(ctx context.Context, sig strategy.Signal, qty float64, c market.Candle) (Position, error) {
	if sig != strategy.EnterLong && sig != strategy.EnterShort {
		return Position{}, fmt.Errorf("signal %s cannot open a position", sig)
	}
	if qty <= 0 {
		return Position{}, fmt.Errorf("quantity must be positive")
	}

	m.mu.Lock()
	if m.halted[c.Symbol] {
		m.mu.Unlock()
		return Position{}, ErrSymbolHalted
	}
	if m.open[c.Symbol] != nil {
		m.mu.Unlock()
		return Position{}, ErrPositionOpen
	}
	m.mu.Unlock()

	entry := c.Close
	side := Long
	orderSide := execution.Buy
	stop := entry * (1 - m.cfg.StopLoss)
	target := entry * (1 + m.cfg.TakeProfit)
	if sig == strategy.EnterShort {
		side = Short
		orderSide = execution.Sell
		stop = entry * (1 + m.cfg.StopLoss)
		target = entry * (1 - m.cfg.TakeProfit)
	}

	order := execution.Order{Symbol: c.Symbol, Side: orderSide, Qty: qty, Price: entry}
	ack, err := m.submitWithRetry(ctx, order)
	if err != nil {
		// Fail safe: assume no fill until the venue says otherwise.
		held, qErr := m.gateway.QueryPosition(ctx, c.Symbol)
		if qErr == nil && math.Abs(held) < qty*0.5 {
			m.log.Error().Err(err).Str("sym", c.Symbol).Msg("entry unconfirmed, venue flat, skipping")
			return Position{}, fmt.Errorf("entry for %s: %w", c.Symbol, ErrExecutionFailure)
		}
		if qErr != nil {
			m.haltSymbol(c.Symbol, "entry and reconciliation both failed")
			return Position{}, fmt.Errorf("entry for %s: %w", c.Symbol, ErrExecutionFailure)
		}
		// The venue holds size after all; adopt the fill at the reference price.
		m.log.Warn().Str("sym", c.Symbol).Float64("held", held).Msg("adopting fill found during reconciliation")
		ack = execution.Ack{FilledQty: math.Abs(held), AvgPrice: entry}
	}
	if ack.AvgPrice > 0 && ack.AvgPrice != entry {
		entry = ack.AvgPrice
		stop = entry * (1 - m.cfg.StopLoss)
		target = entry * (1 + m.cfg.TakeProfit)
		if side == Short {
			stop = entry * (1 + m.cfg.StopLoss)
			target = entry * (1 - m.cfg.TakeProfit)
		}
	}

	pos := &Position{
		Symbol:     c.Symbol,
		Side:       side,
		EntryPrice: entry,
		Qty:        ack.FilledQty,
		Leverage:   m.cfg.Leverage,
		StopLoss:   stop,
		TakeProfit: target,
		HighWater:  entry,
		OpenedAt:   c.OpenTime,
	}
	m.mu.Lock()
	m.open[c.Symbol] = pos
	m.mu.Unlock()

	m.log.Info().Str("sym", c.Symbol).Str("side", string(side)).
		Float64("entry", entry).Float64("qty", pos.Qty).
		Float64("sl", stop).Float64("tp", target).Msg("position opened")
	return *pos, nil
}

// OnCandle evaluates exit conditions for the symbol's open position, in
// fixed precedence: stop loss on the intrabar extreme first (the safety
// path), then take profit, then the trailing stop and the RSI reversion
// exit, which act on the close. snap may be nil while indicators warm up.
func (m *Manager) OnCandle(ctx context.Context, c market.Candle, snap *indicator.Snapshot) (*TradeResult, error) {
	m.mu.Lock()
	pos := m.open[c.Symbol]
	if pos == nil {
		m.mu.Unlock()
		return nil, nil
	}
	exitPrice, reason := m.evaluateExit(pos, c, snap)
	m.mu.Unlock()

	if reason == "" {
		return nil, nil
	}
	return m.close(ctx, c, exitPrice, reason)
}

// evaluateExit must be called with the lock held; it also rolls the high
// water forward when no exit fires.
func (m *Manager) evaluateExit(pos *Position, c market.Candle, snap *indicator.Snapshot) (float64, string) {
	if pos.Side == Long {
		if c.Low <= pos.StopLoss {
			return pos.StopLoss, ReasonStopLoss
		}
		if c.High >= pos.TakeProfit {
			return pos.TakeProfit, ReasonTakeProfit
		}
		if c.High > pos.HighWater {
			pos.HighWater = c.High
		}
		if m.cfg.TrailingTrigger > 0 && pos.HighWater >= pos.EntryPrice*(1+m.cfg.TrailingTrigger) {
			trail := pos.HighWater * (1 - m.cfg.TrailingDistance)
			if c.Close <= trail {
				return trail, ReasonTrailing
			}
		}
		if m.cfg.RSIExitLong > 0 && snap != nil && snap.RSI >= m.cfg.RSIExitLong {
			return c.Close, ReasonRSIExit
		}
		return 0, ""
	}

	if c.High >= pos.StopLoss {
		return pos.StopLoss, ReasonStopLoss
	}
	if c.Low <= pos.TakeProfit {
		return pos.TakeProfit, ReasonTakeProfit
	}
	if c.Low < pos.HighWater {
		pos.HighWater = c.Low
	}
	if m.cfg.TrailingTrigger > 0 && pos.HighWater <= pos.EntryPrice*(1-m.cfg.TrailingTrigger) {
		trail := pos.HighWater * (1 + m.cfg.TrailingDistance)
		if c.Close >= trail {
			return trail, ReasonTrailing
		}
	}
	if m.cfg.RSIExitShort > 0 && snap != nil && snap.RSI <= m.cfg.RSIExitShort {
		return c.Close, ReasonRSIExit
	}
	return 0, ""
}

func (m *Manager) close(ctx context.Context, c market.Candle, exitPrice float64, reason string) (*TradeResult, error) {
	m.mu.Lock()
	pos := m.open[c.Symbol]
	m.mu.Unlock()
	if pos == nil {
		return nil, nil
	}

	orderSide := execution.Sell
	if pos.Side == Short {
		orderSide = execution.Buy
	}
	order := execution.Order{Symbol: c.Symbol, Side: orderSide, Qty: pos.Qty, Price: exitPrice, Reduce: true}
	if _, err := m.submitWithRetry(ctx, order); err != nil {
		held, qErr := m.gateway.QueryPosition(ctx, c.Symbol)
		if qErr != nil || math.Abs(held) > pos.Qty*0.5 {
			// The venue may still hold the position; stop trading the
			// symbol instead of guessing.
			m.haltSymbol(c.Symbol, "close unconfirmed")
			return nil, fmt.Errorf("close for %s: %w", c.Symbol, ErrExecutionFailure)
		}
		m.log.Warn().Str("sym", c.Symbol).Msg("close ack lost but venue flat, recording exit")
	}

	direction := 1.0
	if pos.Side == Short {
		direction = -1.0
	}
	gross := (exitPrice - pos.EntryPrice) * pos.Qty * direction
	commission := (pos.EntryPrice + exitPrice) * pos.Qty * m.cfg.CommissionRate
	res := &TradeResult{
		Symbol:      c.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Qty:         pos.Qty,
		RealizedPnL: gross - commission,
		Reason:      reason,
		ClosedAt:    c.OpenTime,
	}

	m.mu.Lock()
	delete(m.open, c.Symbol)
	m.mu.Unlock()

	outcome := "win"
	if res.RealizedPnL < 0 {
		outcome = "loss"
	}
	metrics.TradesTotal.WithLabelValues(c.Symbol, outcome).Inc()
	m.log.Info().Str("sym", c.Symbol).Str("reason", reason).
		Float64("exit", exitPrice).Float64("pnl", res.RealizedPnL).Msg("position closed")

	if m.results != nil {
		m.results.Record(*res, c.OpenTime)
	}
	return res, nil
}

func (m *Manager) submitWithRetry(ctx context.Context, order execution.Order) (execution.Ack, error) {
	backoff := m.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return execution.Ack{}, ctx.Err()
			}
			backoff *= 2
		}
		ack, err := m.gateway.Submit(ctx, order)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		m.log.Warn().Err(err).Str("sym", order.Symbol).Int("attempt", attempt+1).Msg("order submit failed")
	}
	return execution.Ack{}, lastErr
}

func (m *Manager) haltSymbol(symbol, cause string) {
	m.mu.Lock()
	m.halted[symbol] = true
	m.mu.Unlock()
	m.log.Error().Str("sym", symbol).Str("cause", cause).Msg("halting symbol, manual reconciliation required")
}
