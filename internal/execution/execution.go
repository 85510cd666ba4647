// Package execution handles order submission and interaction with venues.
package execution

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/metrics"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a short order.
	Sell Side = "SELL"
)

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order represents a placement request a gateway can process.
type Order struct {
	Symbol string
	Side   Side
	Qty    float64
	Price  float64 // reference price for market fills
	Reduce bool    // true when the order closes an existing position
}

// Ack confirms a fill reported by the gateway.
type Ack struct {
	OrderID   string
	FilledQty float64
	AvgPrice  float64
}

// Fill records an executed order for ledgers and recorders.
type Fill struct {
	Symbol string
	Side   Side
	Qty    float64
	Price  float64
	Reduce bool
}

// Gateway abstracts the venue: order submission plus the position query used
// to reconcile state after a failed or timed-out submission.
type Gateway interface {
	Submit(ctx context.Context, order Order) (Ack, error)
	// QueryPosition reports the signed base quantity held at the venue
	// (positive long, negative short, zero flat).
	QueryPosition(ctx context.Context, symbol string) (float64, error)
	// Equity reports current account equity in quote currency.
	Equity(ctx context.Context) (float64, error)
}

// LogGateway acknowledges every order at its reference price and logs it.
// Used for dry runs where no venue or paper account is attached.
type LogGateway struct {
	log    zerolog.Logger
	equity float64
	held   map[string]float64
}

// NewLogGateway wraps a zerolog logger and a fixed equity figure.
func NewLogGateway(log zerolog.Logger, equity float64) *LogGateway {
	return &LogGateway{log: log, equity: equity, held: make(map[string]float64)}
}

// Submit logs the order and acknowledges a full fill at the given price.
func (g *LogGateway) Submit(ctx context.Context, order Order) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	g.log.Info().Str("sym", order.Symbol).Str("side", string(order.Side)).
		Float64("qty", order.Qty).Float64("px", order.Price).Bool("reduce", order.Reduce).
		Msg("submit order (dry run)")
	signed := order.Qty
	if order.Side == Sell {
		signed = -signed
	}
	g.held[order.Symbol] += signed
	return Ack{FilledQty: order.Qty, AvgPrice: order.Price}, nil
}

// QueryPosition returns the net quantity accumulated through Submit calls.
func (g *LogGateway) QueryPosition(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return g.held[symbol], nil
}

// Equity returns the fixed equity the gateway was built with.
func (g *LogGateway) Equity(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return g.equity, nil
}
