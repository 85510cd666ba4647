package strategy

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/indicator"
)

// Strategy defines behaviour shared by signal generator implementations.
type Strategy interface {
	OnSnapshot(snap indicator.Snapshot, now time.Time) Signal
	NotifyFilled(symbol string)
	NotifyClosed(symbol string)
	Status(symbol string) string
	Name() string
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	RSIOversold      float64
	RSIOverbought    float64
	VolumeMultiplier float64
	ConfirmationBars int
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params, gate Gate, log zerolog.Logger) Strategy {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "reversal", "rsi_reversal":
		return NewReversal(params.RSIOversold, params.RSIOverbought, params.VolumeMultiplier, params.ConfirmationBars, gate, log)
	default:
		return NewReversal(params.RSIOversold, params.RSIOverbought, params.VolumeMultiplier, params.ConfirmationBars, gate, log)
	}
}
