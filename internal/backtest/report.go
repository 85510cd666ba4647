package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render writes a human-readable performance summary table.
func (r *Result) Render(out io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Total trades", r.TotalTrades},
		{"Winning trades", r.WinningTrades},
		{"Losing trades", r.LosingTrades},
		{"Win rate", fmt.Sprintf("%.1f%%", r.WinRate*100)},
		{"Total PnL", fmt.Sprintf("%.2f", r.TotalPnL)},
		{"Total return", fmt.Sprintf("%.2f%%", r.TotalReturn*100)},
		{"Avg win", fmt.Sprintf("%.2f", r.AvgWin)},
		{"Avg loss", fmt.Sprintf("%.2f", r.AvgLoss)},
		{"Profit factor", formatProfitFactor(r.ProfitFactor)},
		{"Sharpe ratio", fmt.Sprintf("%.2f", r.SharpeRatio)},
		{"Max drawdown", fmt.Sprintf("%.1f%%", r.MaxDrawdown*100)},
		{"Max consecutive losses", r.MaxConsecutiveLosses},
		{"Final equity", fmt.Sprintf("%.2f", r.FinalEquity)},
	})
	t.Render()
}

func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}

// WriteTradesCSV exports every closed trade for offline analysis.
func (r *Result) WriteTradesCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"closed_at", "symbol", "side", "entry_price", "exit_price", "quantity", "realized_pnl", "reason"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range r.Trades {
		row := []string{
			t.ClosedAt.Format(time.RFC3339),
			t.Symbol,
			string(t.Side),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.Qty, 'f', -1, 64),
			strconv.FormatFloat(t.RealizedPnL, 'f', 2, 64),
			t.Reason,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
