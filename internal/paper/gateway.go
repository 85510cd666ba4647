package paper

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/execution"
	"github.com/ugurhss/3x-trading-bot/internal/metrics"
)

// Gateway adapts the simulated account to the execution.Gateway interface so
// the lifecycle manager trades paper and live through the same path.
type Gateway struct {
	account *Account
	ledger  *Ledger
	log     zerolog.Logger
}

// NewGateway wires an account and an optional ledger into a gateway.
func NewGateway(account *Account, ledger *Ledger, log zerolog.Logger) *Gateway {
	return &Gateway{account: account, ledger: ledger, log: log}
}

// Account exposes the underlying simulated account for reporting.
func (g *Gateway) Account() *Account { return g.account }

// Submit fills the order immediately at its reference price.
func (g *Gateway) Submit(ctx context.Context, order execution.Order) (execution.Ack, error) {
	if err := ctx.Err(); err != nil {
		return execution.Ack{}, err
	}
	fill := execution.Fill{
		Symbol: order.Symbol,
		Side:   order.Side,
		Qty:    order.Qty,
		Price:  order.Price,
		Reduce: order.Reduce,
	}
	if err := g.account.ApplyFill(fill); err != nil {
		return execution.Ack{}, fmt.Errorf("paper fill: %w", err)
	}
	if g.ledger != nil {
		g.ledger.Record(fill)
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	g.log.Debug().Str("sym", order.Symbol).Str("side", string(order.Side)).
		Float64("qty", order.Qty).Float64("px", order.Price).Msg("paper fill")
	return execution.Ack{FilledQty: order.Qty, AvgPrice: order.Price}, nil
}

// QueryPosition reports the signed simulated position.
func (g *Gateway) QueryPosition(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return g.account.Position(symbol), nil
}

// Equity reports marked account equity.
func (g *Gateway) Equity(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return g.account.Equity(), nil
}
