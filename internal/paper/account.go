// Package paper simulates a leveraged derivatives account for paper trading
// and backtests.
package paper

import (
	"errors"
	"math"
	"sync"

	"github.com/ugurhss/3x-trading-bot/internal/execution"
	"github.com/ugurhss/3x-trading-bot/internal/metrics"
)

const epsilon = 1e-9

type positionState struct {
	Qty      float64 // signed: positive long, negative short
	AvgEntry float64
}

// Account tracks virtual cash, margin usage, and per-symbol positions while
// trading against simulated fills. Quantities are signed so longs and shorts
// share one bookkeeping path.
type Account struct {
	mu             sync.Mutex
	startingCash   float64
	cash           float64
	realizedPnL    float64
	leverage       float64
	commissionRate float64
	positions      map[string]positionState
	marks          map[string]float64
}

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Qty        float64
	AvgEntry   float64
	Unrealized float64
}

// Snapshot represents a consistent view of the account state marked at the
// last seen prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Equity      float64
	UsedMargin  float64
	Positions   map[string]PositionSnapshot
}

// NewAccount constructs an account with starting cash, leverage, and a
// per-leg taker commission rate.
func NewAccount(startingCash float64, leverage int, commissionRate float64) *Account {
	lev := float64(leverage)
	if lev < 1 {
		lev = 1
	}
	return &Account{
		startingCash:   startingCash,
		cash:           startingCash,
		leverage:       lev,
		commissionRate: commissionRate,
		positions:      make(map[string]positionState),
		marks:          make(map[string]float64),
	}
}

// StartingCash returns the initial bankroll used to compute drawdown.
func (a *Account) StartingCash() float64 { return a.startingCash }

// ApplyFill mutates balances for one executed order. Opening legs must fit
// inside free margin at the configured leverage; reducing legs realize PnL
// against the average entry. Commission is charged on every leg's notional.
func (a *Account) ApplyFill(fill execution.Fill) error {
	if fill.Qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if fill.Price <= 0 {
		return errors.New("price must be positive")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	signed := fill.Qty
	if fill.Side == execution.Sell {
		signed = -fill.Qty
	}
	state := a.positions[fill.Symbol]
	commission := fill.Qty * fill.Price * a.commissionRate

	reducing := state.Qty*signed < 0
	if reducing {
		if math.Abs(signed) > math.Abs(state.Qty)+epsilon {
			return errors.New("reduce exceeds open position")
		}
		closed := math.Abs(signed)
		direction := 1.0
		if state.Qty < 0 {
			direction = -1.0
		}
		realized := (fill.Price - state.AvgEntry) * closed * direction
		a.realizedPnL += realized
		a.cash += realized - commission

		remaining := state.Qty + signed
		if math.Abs(remaining) <= epsilon {
			delete(a.positions, fill.Symbol)
		} else {
			a.positions[fill.Symbol] = positionState{Qty: remaining, AvgEntry: state.AvgEntry}
		}
	} else {
		notional := fill.Qty * fill.Price
		required := notional / a.leverage
		if required > a.freeMarginLocked()+epsilon {
			return errors.New("insufficient margin")
		}
		newQty := state.Qty + signed
		newAvg := fill.Price
		if math.Abs(state.Qty) > epsilon {
			newAvg = (state.AvgEntry*math.Abs(state.Qty) + notional) / math.Abs(newQty)
		}
		a.cash -= commission
		a.positions[fill.Symbol] = positionState{Qty: newQty, AvgEntry: newAvg}
	}

	a.marks[fill.Symbol] = fill.Price
	metrics.AccountEquity.Set(a.equityLocked())
	return nil
}

// Mark updates the valuation price for a symbol, typically per candle close.
func (a *Account) Mark(symbol string, price float64) {
	if price <= 0 {
		return
	}
	a.mu.Lock()
	a.marks[symbol] = price
	metrics.AccountEquity.Set(a.equityLocked())
	a.mu.Unlock()
}

// Equity returns cash plus unrealized PnL at the last marks.
func (a *Account) Equity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.equityLocked()
}

// Position returns the signed position size for the supplied symbol.
func (a *Account) Position(symbol string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[symbol].Qty
}

// RealizedPnL returns total closed-trade profit and loss net of commission
// on reducing legs.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

// Snapshot returns a copy of balances marked at the last seen prices.
func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	for sym, pos := range a.positions {
		positions[sym] = PositionSnapshot{
			Qty:        pos.Qty,
			AvgEntry:   pos.AvgEntry,
			Unrealized: a.unrealizedLocked(sym, pos),
		}
	}
	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      a.equityLocked(),
		UsedMargin:  a.usedMarginLocked(),
		Positions:   positions,
	}
}

func (a *Account) unrealizedLocked(symbol string, pos positionState) float64 {
	mark := a.marks[symbol]
	if mark <= 0 {
		return 0
	}
	return (mark - pos.AvgEntry) * pos.Qty
}

func (a *Account) equityLocked() float64 {
	equity := a.cash
	for sym, pos := range a.positions {
		equity += a.unrealizedLocked(sym, pos)
	}
	return equity
}

func (a *Account) usedMarginLocked() float64 {
	var used float64
	for sym, pos := range a.positions {
		mark := a.marks[sym]
		if mark <= 0 {
			mark = pos.AvgEntry
		}
		used += math.Abs(pos.Qty) * mark / a.leverage
	}
	return used
}

func (a *Account) freeMarginLocked() float64 {
	return a.equityLocked() - a.usedMarginLocked()
}
