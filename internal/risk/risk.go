// Package risk tracks realized trade outcomes and gates new entries through
// a consecutive-loss circuit breaker.
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/metrics"
	"github.com/ugurhss/3x-trading-bot/internal/position"
)

// Scope selects whether the losing streak is shared by the whole account or
// tracked independently per symbol.
type Scope string

const (
	// ScopeAccount shares one streak and one pause window across all symbols.
	ScopeAccount Scope = "account"
	// ScopeSymbol keeps an independent streak per symbol.
	ScopeSymbol Scope = "symbol"
)

// State is a read-only view of one breaker's condition.
type State struct {
	ConsecutiveLosses int
	PausedUntil       time.Time
}

type breaker struct {
	losses      int
	pausedUntil time.Time
}

// Manager applies the circuit-breaker rule: each losing trade extends the
// streak, any winner resets it, and when the streak reaches the threshold
// new entries are forbidden for the pause window. The pause is re-checked on
// every candle, not latched once. All access is serialized so concurrent
// symbol pipelines cannot both slip through the gate between a loss and its
// recording.
type Manager struct {
	maxLosses int
	pause     time.Duration
	scope     Scope
	log       zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*breaker
}

const accountKey = "account"

// NewManager builds a breaker manager. maxLosses must be >= 1.
func NewManager(maxLosses int, pause time.Duration, scope Scope, log zerolog.Logger) *Manager {
	if maxLosses < 1 {
		maxLosses = 1
	}
	if scope != ScopeSymbol {
		scope = ScopeAccount
	}
	return &Manager{
		maxLosses: maxLosses,
		pause:     pause,
		scope:     scope,
		log:       log,
		breakers:  make(map[string]*breaker),
	}
}

func (m *Manager) key(symbol string) string {
	if m.scope == ScopeSymbol {
		return symbol
	}
	return accountKey
}

func (m *Manager) breakerFor(key string) *breaker {
	b := m.breakers[key]
	if b == nil {
		b = &breaker{}
		m.breakers[key] = b
	}
	return b
}

// Allowed reports whether new entries are permitted for the symbol at the
// given time. A pause that has elapsed also clears the streak, so trading
// resumes with a clean slate.
func (m *Manager) Allowed(symbol string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(symbol)
	b := m.breakerFor(key)
	if b.pausedUntil.IsZero() {
		return true
	}
	if now.Before(b.pausedUntil) {
		return false
	}
	b.pausedUntil = time.Time{}
	b.losses = 0
	m.publish(key, b)
	m.log.Info().Str("scope", key).Msg("pause elapsed, trading resumed")
	return true
}

// Record applies a closed trade to the breaker state.
func (m *Manager) Record(res position.TradeResult, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(res.Symbol)
	b := m.breakerFor(key)

	if res.RealizedPnL >= 0 {
		b.losses = 0
		m.publish(key, b)
		return
	}

	b.losses++
	if b.losses >= m.maxLosses {
		b.pausedUntil = now.Add(m.pause)
		m.log.Warn().Str("scope", key).Int("losses", b.losses).
			Time("paused_until", b.pausedUntil).Msg("circuit breaker tripped")
	}
	m.publish(key, b)
}

// StateFor exposes the breaker state guarding a symbol, for monitoring.
func (m *Manager) StateFor(symbol string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.breakerFor(m.key(symbol))
	return State{ConsecutiveLosses: b.losses, PausedUntil: b.pausedUntil}
}

// publish must be called with the lock held.
func (m *Manager) publish(key string, b *breaker) {
	metrics.ConsecutiveLosses.WithLabelValues(key).Set(float64(b.losses))
	paused := 0.0
	if !b.pausedUntil.IsZero() {
		paused = 1.0
	}
	metrics.TradingPaused.WithLabelValues(key).Set(paused)
}
