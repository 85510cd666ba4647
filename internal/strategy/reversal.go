package strategy

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/indicator"
	"github.com/ugurhss/3x-trading-bot/internal/metrics"
)

// Gate decides whether new entries are currently permitted. It is consulted
// on every candle so a pause window stays enforced for its whole duration.
type Gate interface {
	Allowed(symbol string, now time.Time) bool
}

type phase int

const (
	phaseIdle phase = iota
	phaseArmed
	phaseInPosition
)

type symbolState struct {
	phase     phase
	armedSide Signal
	heldBars  int
}

// Reversal emits entries when RSI reaches an extreme with volume
// confirmation: long at or below the oversold bound, short at or above the
// overbought bound, both requiring volume_ratio >= the multiplier.
type Reversal struct {
	oversold         float64
	overbought       float64
	volumeMultiplier float64
	confirmationBars int
	gate             Gate
	log              zerolog.Logger
	mu               sync.Mutex
	states           map[string]*symbolState
}

// NewReversal builds the generator. A nil gate permits all entries.
func NewReversal(oversold, overbought, volumeMultiplier float64, confirmationBars int, gate Gate, log zerolog.Logger) *Reversal {
	if confirmationBars < 0 {
		confirmationBars = 0
	}
	return &Reversal{
		oversold:         oversold,
		overbought:       overbought,
		volumeMultiplier: volumeMultiplier,
		confirmationBars: confirmationBars,
		gate:             gate,
		log:              log,
		states:           make(map[string]*symbolState),
	}
}

// Name returns the configured identifier for logging.
func (r *Reversal) Name() string { return "Reversal" }

// OnSnapshot evaluates one candle's snapshot and returns at most one signal.
// While a position is open the generator stays silent; exits belong to the
// position manager.
func (r *Reversal) OnSnapshot(snap indicator.Snapshot, now time.Time) Signal {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.states[snap.Symbol]
	if state == nil {
		state = &symbolState{}
		r.states[snap.Symbol] = state
	}
	if state.phase == phaseInPosition {
		return None
	}
	if r.gate != nil && !r.gate.Allowed(snap.Symbol, now) {
		state.disarm()
		return None
	}

	volumeOK := snap.VolumeRatio >= r.volumeMultiplier
	longCond := volumeOK && snap.RSI <= r.oversold
	shortCond := volumeOK && snap.RSI >= r.overbought

	switch {
	case longCond && shortCond:
		// Cannot happen with oversold < overbought; discard rather than guess.
		metrics.SignalConflictsTotal.WithLabelValues(snap.Symbol).Inc()
		r.log.Warn().Str("sym", snap.Symbol).Float64("rsi", snap.RSI).Msg("conflicting entry conditions, discarding")
		state.disarm()
		return None
	case longCond:
		return r.advance(state, snap, EnterLong)
	case shortCond:
		return r.advance(state, snap, EnterShort)
	default:
		state.disarm()
		return None
	}
}

// advance applies the confirmation-bar hold: with zero bars configured the
// entry fires on the first qualifying candle, otherwise the condition must
// persist on consecutive candles before the signal is released.
func (r *Reversal) advance(state *symbolState, snap indicator.Snapshot, side Signal) Signal {
	if state.phase == phaseArmed && state.armedSide == side {
		state.heldBars++
	} else {
		state.phase = phaseArmed
		state.armedSide = side
		state.heldBars = 0
	}
	if state.heldBars < r.confirmationBars {
		return None
	}
	state.disarm()
	metrics.SignalsTotal.WithLabelValues(snap.Symbol, side.String()).Inc()
	r.log.Info().Str("sym", snap.Symbol).Str("signal", side.String()).
		Float64("rsi", snap.RSI).Float64("volume_ratio", snap.VolumeRatio).Msg("entry signal")
	return side
}

// NotifyFilled marks the symbol as holding a position; entries are
// suppressed until NotifyClosed.
func (r *Reversal) NotifyFilled(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[symbol]
	if state == nil {
		state = &symbolState{}
		r.states[symbol] = state
	}
	state.phase = phaseInPosition
	state.armedSide = None
	state.heldBars = 0
}

// NotifyClosed returns the symbol to idle after its position closes.
func (r *Reversal) NotifyClosed(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state := r.states[symbol]; state != nil {
		state.phase = phaseIdle
		state.armedSide = None
		state.heldBars = 0
	}
}

// Status reports the generator phase for a symbol, for monitoring.
func (r *Reversal) Status(symbol string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[symbol]
	if state == nil {
		return "IDLE"
	}
	switch state.phase {
	case phaseInPosition:
		return "IN_POSITION"
	case phaseArmed:
		if state.armedSide == EnterShort {
			return "ARMED_SHORT"
		}
		return "ARMED_LONG"
	default:
		return "IDLE"
	}
}

func (s *symbolState) disarm() {
	if s.phase == phaseArmed {
		s.phase = phaseIdle
	}
	s.armedSide = None
	s.heldBars = 0
}
