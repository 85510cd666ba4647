package backtest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ugurhss/3x-trading-bot/internal/config"
	"github.com/ugurhss/3x-trading-bot/internal/position"
)

func backtestConfig() *config.Config {
	return &config.Config{
		Exchange: config.Exchange{
			Provider: "csv",
			Symbols:  []string{"BTCUSDT"},
			Interval: "1h",
		},
		Strategy: config.Strategy{
			Mode:             "reversal",
			RSIPeriod:        3,
			RSIOversold:      30,
			RSIOverbought:    60,
			VolumePeriod:     4,
			VolumeMultiplier: 1.5,
		},
		Risk: config.Risk{
			RiskPerTrade:         0.01,
			Leverage:             3,
			TakeProfit:           0.06,
			StopLoss:             0.03,
			MaxConsecutiveLosses: 3,
			PauseHours:           24,
			Scope:                "account",
		},
		Paper: config.Paper{StartingCash: 1000},
	}
}

// writeFixture lays down a falling series on flat volume, a spike candle
// that triggers the long at 96, and a candle whose low pierces the 93.12 stop.
func writeFixture(t *testing.T, dir string) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []struct {
		hour                   int
		open, high, low, close float64
		volume                 float64
	}{
		{1, 100.5, 100.5, 99.5, 100, 100},
		{2, 99.5, 99.5, 98.5, 99, 100},
		{3, 98.5, 98.5, 97.5, 98, 100},
		{4, 97.5, 97.5, 96.5, 97, 100},
		{5, 96.5, 96.5, 95.5, 96, 500},
		{6, 96, 96, 93, 93.5, 100},
	}

	var sb strings.Builder
	sb.WriteString("open_time,open,high,low,close,volume\n")
	for _, row := range rows {
		ts := base.Add(time.Duration(row.hour) * time.Hour).UnixMilli()
		fmt.Fprintf(&sb, "%d,%g,%g,%g,%g,%g\n", ts, row.open, row.high, row.low, row.close, row.volume)
	}
	err := os.WriteFile(filepath.Join(dir, "BTCUSDT.csv"), []byte(sb.String()), 0o644)
	require.NoError(t, err)
}

func TestRunnerReplaysOneStopLossTrade(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	runner := NewRunner(backtestConfig(), dir, zerolog.Nop())
	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 1, res.LosingTrades)
	assert.Equal(t, 1, res.MaxConsecutiveLosses)

	trade := res.Trades[0]
	assert.Equal(t, position.Long, trade.Side)
	assert.Equal(t, position.ReasonStopLoss, trade.Reason)
	assert.InDelta(t, 96, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 96*0.97, trade.ExitPrice, 1e-9)
	// Risking 1% of 1000 means the stop costs 10.
	assert.InDelta(t, -10, trade.RealizedPnL, 1e-6)
	assert.InDelta(t, -10, res.TotalPnL, 1e-6)
	assert.InDelta(t, 990, res.FinalEquity, 1e-6)
	assert.InDelta(t, 0.01, res.MaxDrawdown, 1e-6)
}

func TestRunnerMissingDataDirFails(t *testing.T) {
	runner := NewRunner(backtestConfig(), t.TempDir(), zerolog.Nop())
	_, err := runner.Run(context.Background())
	require.Error(t, err, "replay without the symbol file must fail")
}

func TestRenderAndExportTrades(t *testing.T) {
	res := computeResult([]position.TradeResult{
		{Symbol: "BTCUSDT", Side: position.Long, EntryPrice: 96, ExitPrice: 93.12,
			Qty: 3.47, RealizedPnL: -10, Reason: position.ReasonStopLoss,
			ClosedAt: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)},
	}, 1000)
	res.FinalEquity = 990

	var buf bytes.Buffer
	res.Render(&buf)
	out := buf.String()
	assert.Contains(t, out, "Total trades")
	assert.Contains(t, out, "990.00")

	path := filepath.Join(t.TempDir(), "out", "trades.csv")
	require.NoError(t, res.WriteTradesCSV(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ",SL\n")
	assert.Contains(t, string(data), "BTCUSDT")
}
