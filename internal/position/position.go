// Package position owns open-position state: it opens sized positions,
// evaluates exit conditions on every candle, and reports closed trades.
package position

import (
	"time"
)

// Side labels the direction of an open position.
type Side string

const (
	// Long profits when price rises.
	Long Side = "LONG"
	// Short profits when price falls.
	Short Side = "SHORT"
)

// Position is the single open holding a symbol may have. It is created when
// an entry signal is accepted and destroyed into a TradeResult on exit.
type Position struct {
	Symbol     string
	Side       Side
	EntryPrice float64
	Qty        float64
	Leverage   int
	StopLoss   float64
	TakeProfit float64
	// HighWater tracks the best price reached since entry (highest for
	// longs, lowest for shorts); the trailing stop hangs off it.
	HighWater float64
	OpenedAt  time.Time
}

// TradeResult is the immutable record of a closed position.
type TradeResult struct {
	Symbol      string
	Side        Side
	EntryPrice  float64
	ExitPrice   float64
	Qty         float64
	RealizedPnL float64
	Reason      string
	ClosedAt    time.Time
}

// Recorder consumes trade results; the risk manager implements it.
type Recorder interface {
	Record(res TradeResult, now time.Time)
}

// Exit reasons attached to TradeResult.
const (
	ReasonStopLoss   = "SL"
	ReasonTakeProfit = "TP"
	ReasonTrailing   = "TRAILING_SL"
	ReasonRSIExit    = "RSI_EXIT"
)
