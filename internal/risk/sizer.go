package risk

import (
	"errors"
)

// ErrInsufficientEquity means the account cannot fund any valid quantity.
var ErrInsufficientEquity = errors.New("insufficient equity for position")

// Sizer converts an entry price plus account equity into an order quantity
// such that hitting the stop loses riskPerTrade of equity. The notional is
// then capped so required margin never exceeds equity at the configured
// leverage.
type Sizer struct {
	riskPerTrade float64 // fraction of equity risked per trade, e.g. 0.01
	stopFraction float64 // stop distance as a fraction of entry, e.g. 0.03
	leverage     float64
}

// NewSizer builds a sizer; leverage below 1 is treated as 1.
func NewSizer(riskPerTrade, stopFraction float64, leverage int) *Sizer {
	lev := float64(leverage)
	if lev < 1 {
		lev = 1
	}
	return &Sizer{riskPerTrade: riskPerTrade, stopFraction: stopFraction, leverage: lev}
}

// Quantity returns the base quantity to order. capped is true when the
// risk-derived size exceeded the margin-constrained maximum and was reduced;
// the caller decides whether to log or refuse the shortfall.
func (s *Sizer) Quantity(equity, entryPrice float64) (qty float64, capped bool, err error) {
	if equity <= 0 {
		return 0, false, ErrInsufficientEquity
	}
	if entryPrice <= 0 || s.stopFraction <= 0 || s.riskPerTrade <= 0 {
		return 0, false, ErrInsufficientEquity
	}

	// quantity * entry * stopFraction == equity * riskPerTrade
	qty = (equity * s.riskPerTrade) / (entryPrice * s.stopFraction)
	if qty <= 0 {
		return 0, false, ErrInsufficientEquity
	}

	maxQty := equity * s.leverage / entryPrice
	if qty > maxQty {
		return maxQty, true, nil
	}
	return qty, false, nil
}
