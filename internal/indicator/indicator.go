// Package indicator computes rolling technical indicators from candle
// windows. Computation is pure: the same window always yields the same
// snapshot.
package indicator

import (
	"math"
	"time"

	"github.com/ugurhss/3x-trading-bot/internal/market"
)

// Snapshot is the per-candle indicator readout consumed by the strategy.
type Snapshot struct {
	Symbol      string
	Ts          time.Time
	RSI         float64
	VolumeRatio float64
}

// Engine derives snapshots from trailing candle windows.
type Engine struct {
	rsiPeriod    int
	volumePeriod int
}

// NewEngine builds an engine with the configured lookbacks. Non-positive
// periods fall back to the conventional RSI(14) and volume MA(20).
func NewEngine(rsiPeriod, volumePeriod int) *Engine {
	if rsiPeriod <= 0 {
		rsiPeriod = 14
	}
	if volumePeriod <= 0 {
		volumePeriod = 20
	}
	return &Engine{rsiPeriod: rsiPeriod, volumePeriod: volumePeriod}
}

// Lookback reports the minimum window length needed before Compute is ready.
// RSI needs period+1 closes for the first delta series.
func (e *Engine) Lookback() int {
	rsi := e.rsiPeriod + 1
	if e.volumePeriod > rsi {
		return e.volumePeriod
	}
	return rsi
}

// Compute returns a snapshot for the last candle of the window, or ok=false
// while the window is shorter than the lookback.
func (e *Engine) Compute(window []market.Candle) (Snapshot, bool) {
	if len(window) < e.Lookback() {
		return Snapshot{}, false
	}
	closes := make([]float64, len(window))
	volumes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	last := window[len(window)-1]
	return Snapshot{
		Symbol:      last.Symbol,
		Ts:          last.OpenTime,
		RSI:         rsi(closes, e.rsiPeriod),
		VolumeRatio: volumeRatio(volumes, e.volumePeriod),
	}, true
}

// rsi computes the Relative Strength Index over the final period of the
// close series using Wilder smoothing: the first averages are simple means
// and every later delta folds in as avg = (avg*(n-1) + cur) / n.
func rsi(closes []float64, period int) float64 {
	changes := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		changes[i-1] = closes[i] - closes[i-1]
	}

	var avgGain, avgLoss float64
	for _, change := range changes[:period] {
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += math.Abs(change)
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	n := float64(period)
	for _, change := range changes[period:] {
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}
		avgGain = (avgGain*(n-1) + gain) / n
		avgLoss = (avgLoss*(n-1) + loss) / n
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// volumeRatio divides the last volume by the simple moving average of the
// trailing period (the last candle included, matching the reference series).
func volumeRatio(volumes []float64, period int) float64 {
	tail := volumes[len(volumes)-period:]
	var sum float64
	for _, v := range tail {
		sum += v
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 0
	}
	return volumes[len(volumes)-1] / avg
}
