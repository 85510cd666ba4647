// Package market standardizes candle data shared between feeds and the
// strategy pipeline.
package market

import (
	"errors"
	"sync"
	"time"
)

// Candle is a fixed-interval OHLCV summary for one symbol. Feeds emit
// candles ordered by OpenTime, one per interval, and only once closed.
type Candle struct {
	Symbol   string
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Closed   bool
}

// ErrStaleCandle marks a candle whose open time does not advance the
// per-symbol sequence. Stale candles must not advance indicator windows.
var ErrStaleCandle = errors.New("stale or out-of-order candle")

// StreamGuard enforces strictly increasing open times per symbol.
// Duplicates and regressions are rejected so downstream state never
// observes the same interval twice.
type StreamGuard struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewStreamGuard returns a guard with no history.
func NewStreamGuard() *StreamGuard {
	return &StreamGuard{last: make(map[string]time.Time)}
}

// Admit returns nil when the candle advances its symbol's sequence and
// records it as the new high-water mark. Otherwise ErrStaleCandle.
func (g *StreamGuard) Admit(c Candle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.last[c.Symbol]; ok && !c.OpenTime.After(prev) {
		return ErrStaleCandle
	}
	g.last[c.Symbol] = c.OpenTime
	return nil
}

// Last reports the most recently admitted open time for a symbol.
func (g *StreamGuard) Last(symbol string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.last[symbol]
	return ts, ok
}
