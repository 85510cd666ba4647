package paper

import (
	"math"
	"testing"

	"github.com/ugurhss/3x-trading-bot/internal/execution"
)

func TestAccountLongRoundTrip(t *testing.T) {
	account := NewAccount(1000, 3, 0)

	if err := account.ApplyFill(execution.Fill{Symbol: "BTCUSDT", Side: execution.Buy, Qty: 0.05, Price: 50000}); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if qty := account.Position("BTCUSDT"); qty != 0.05 {
		t.Fatalf("expected signed qty 0.05, got %.4f", qty)
	}

	snap := account.Snapshot()
	// Notional 2500 at 3x leverage consumes ~833 margin out of 1000 equity.
	if snap.UsedMargin < 830 || snap.UsedMargin > 840 {
		t.Fatalf("unexpected used margin %.2f", snap.UsedMargin)
	}

	if err := account.ApplyFill(execution.Fill{Symbol: "BTCUSDT", Side: execution.Sell, Qty: 0.05, Price: 53000, Reduce: true}); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	realized := account.RealizedPnL()
	if math.Abs(realized-150) > 1e-9 {
		t.Fatalf("expected realized 150, got %.2f", realized)
	}
	if eq := account.Equity(); math.Abs(eq-1150) > 1e-9 {
		t.Fatalf("expected equity 1150, got %.2f", eq)
	}
}

func TestAccountShortRoundTrip(t *testing.T) {
	account := NewAccount(1000, 3, 0)

	if err := account.ApplyFill(execution.Fill{Symbol: "ETHUSDT", Side: execution.Sell, Qty: 1, Price: 3000}); err != nil {
		t.Fatalf("unexpected short open error: %v", err)
	}
	if qty := account.Position("ETHUSDT"); qty != -1 {
		t.Fatalf("expected signed qty -1, got %.4f", qty)
	}

	if err := account.ApplyFill(execution.Fill{Symbol: "ETHUSDT", Side: execution.Buy, Qty: 1, Price: 2900, Reduce: true}); err != nil {
		t.Fatalf("unexpected short close error: %v", err)
	}
	if realized := account.RealizedPnL(); math.Abs(realized-100) > 1e-9 {
		t.Fatalf("expected realized 100 on short, got %.2f", realized)
	}
}

func TestAccountRejectsOversizedOpen(t *testing.T) {
	account := NewAccount(1000, 2, 0)
	// Notional 3000 needs 1500 margin against 1000 equity.
	err := account.ApplyFill(execution.Fill{Symbol: "BTCUSDT", Side: execution.Buy, Qty: 0.06, Price: 50000})
	if err == nil {
		t.Fatalf("expected margin rejection")
	}
}

func TestAccountRejectsExcessReduce(t *testing.T) {
	account := NewAccount(1000, 3, 0)
	if err := account.ApplyFill(execution.Fill{Symbol: "BTCUSDT", Side: execution.Buy, Qty: 0.01, Price: 50000}); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	err := account.ApplyFill(execution.Fill{Symbol: "BTCUSDT", Side: execution.Sell, Qty: 0.02, Price: 50000, Reduce: true})
	if err == nil {
		t.Fatalf("expected reduce rejection")
	}
}

func TestAccountCommission(t *testing.T) {
	account := NewAccount(1000, 3, 0.0004)
	if err := account.ApplyFill(execution.Fill{Symbol: "BTCUSDT", Side: execution.Buy, Qty: 0.01, Price: 50000}); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if err := account.ApplyFill(execution.Fill{Symbol: "BTCUSDT", Side: execution.Sell, Qty: 0.01, Price: 50000, Reduce: true}); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	// Flat trade pays 0.0004 * 500 on each leg.
	want := 1000 - 2*0.0004*500
	if eq := account.Equity(); math.Abs(eq-want) > 1e-9 {
		t.Fatalf("expected equity %.4f after fees, got %.4f", want, eq)
	}
}

func TestAccountMarkMovesEquity(t *testing.T) {
	account := NewAccount(1000, 3, 0)
	if err := account.ApplyFill(execution.Fill{Symbol: "BTCUSDT", Side: execution.Buy, Qty: 0.01, Price: 50000}); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	account.Mark("BTCUSDT", 51000)
	if eq := account.Equity(); math.Abs(eq-1010) > 1e-9 {
		t.Fatalf("expected marked equity 1010, got %.2f", eq)
	}
}
