package position

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/execution"
	"github.com/ugurhss/3x-trading-bot/internal/indicator"
	"github.com/ugurhss/3x-trading-bot/internal/market"
	"github.com/ugurhss/3x-trading-bot/internal/strategy"
)

// fakeGateway scripts submit outcomes so failure paths are reachable.
type fakeGateway struct {
	failSubmits int // fail the first N submits
	queryErr    error
	held        float64
	submits     []execution.Order
}

func (g *fakeGateway) Submit(_ context.Context, o execution.Order) (execution.Ack, error) {
	g.submits = append(g.submits, o)
	if g.failSubmits > 0 {
		g.failSubmits--
		return execution.Ack{}, errors.New("venue unavailable")
	}
	if o.Reduce {
		g.held = 0
	} else {
		signed := o.Qty
		if o.Side == execution.Sell {
			signed = -o.Qty
		}
		g.held += signed
	}
	return execution.Ack{OrderID: "1", FilledQty: o.Qty, AvgPrice: o.Price}, nil
}

func (g *fakeGateway) QueryPosition(_ context.Context, _ string) (float64, error) {
	if g.queryErr != nil {
		return 0, g.queryErr
	}
	return g.held, nil
}

func (g *fakeGateway) Equity(_ context.Context) (float64, error) { return 1000, nil }

type captureRecorder struct {
	results []TradeResult
}

func (r *captureRecorder) Record(res TradeResult, _ time.Time) {
	r.results = append(r.results, res)
}

func testConfig() Config {
	return Config{
		TakeProfit:       0.06,
		StopLoss:         0.03,
		TrailingTrigger:  0.03,
		TrailingDistance: 0.015,
		RSIExitLong:      60,
		RSIExitShort:     30,
		Leverage:         3,
		CommissionRate:   0.0004,
		MaxRetries:       2,
		RetryBackoff:     time.Millisecond,
	}
}

func candleAt(close float64, ts time.Time) market.Candle {
	return market.Candle{
		Symbol: "BTCUSDT", OpenTime: ts,
		Open: close, High: close, Low: close, Close: close,
		Volume: 100, Closed: true,
	}
}

func mustOpen(t *testing.T, m *Manager, sig strategy.Signal, qty float64, c market.Candle) Position {
	t.Helper()
	pos, err := m.TryOpen(context.Background(), sig, qty, c)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return pos
}

func TestTryOpenDerivesLongExits(t *testing.T) {
	gw := &fakeGateway{}
	m := NewManager(testConfig(), gw, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	pos := mustOpen(t, m, strategy.EnterLong, 0.01, candleAt(50000, ts))
	if pos.Side != Long {
		t.Fatalf("side = %s", pos.Side)
	}
	if got, want := pos.StopLoss, 50000*0.97; math.Abs(got-want) > 1e-9 {
		t.Fatalf("stop = %v, want %v", got, want)
	}
	if got, want := pos.TakeProfit, 50000*1.06; math.Abs(got-want) > 1e-9 {
		t.Fatalf("target = %v, want %v", got, want)
	}
	if len(gw.submits) != 1 || gw.submits[0].Side != execution.Buy {
		t.Fatalf("expected one BUY submit, got %+v", gw.submits)
	}
}

func TestTryOpenDerivesShortExits(t *testing.T) {
	m := NewManager(testConfig(), &fakeGateway{}, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	pos := mustOpen(t, m, strategy.EnterShort, 0.01, candleAt(50000, ts))
	if pos.Side != Short {
		t.Fatalf("side = %s", pos.Side)
	}
	if got, want := pos.StopLoss, 50000*1.03; math.Abs(got-want) > 1e-9 {
		t.Fatalf("stop = %v, want %v", got, want)
	}
	if got, want := pos.TakeProfit, 50000*0.94; math.Abs(got-want) > 1e-9 {
		t.Fatalf("target = %v, want %v", got, want)
	}
}

func TestTryOpenRejectsSecondEntry(t *testing.T) {
	m := NewManager(testConfig(), &fakeGateway{}, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustOpen(t, m, strategy.EnterLong, 0.01, candleAt(50000, ts))

	_, err := m.TryOpen(context.Background(), strategy.EnterLong, 0.01, candleAt(50000, ts.Add(time.Hour)))
	if !errors.Is(err, ErrPositionOpen) {
		t.Fatalf("err = %v, want ErrPositionOpen", err)
	}
}

func TestStopLossBeatsTakeProfitIntrabar(t *testing.T) {
	rec := &captureRecorder{}
	m := NewManager(testConfig(), &fakeGateway{}, rec, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustOpen(t, m, strategy.EnterLong, 0.01, candleAt(50000, ts))

	// One candle spans both the stop and the target; the stop wins.
	wide := market.Candle{
		Symbol: "BTCUSDT", OpenTime: ts.Add(time.Hour),
		Open: 50000, High: 54000, Low: 48000, Close: 51000,
		Volume: 100, Closed: true,
	}
	res, err := m.OnCandle(context.Background(), wide, nil)
	if err != nil {
		t.Fatalf("on candle: %v", err)
	}
	if res == nil || res.Reason != ReasonStopLoss {
		t.Fatalf("expected stop-loss exit, got %+v", res)
	}
	if math.Abs(res.ExitPrice-50000*0.97) > 1e-9 {
		t.Fatalf("exit = %v, want stop price", res.ExitPrice)
	}
	if res.RealizedPnL >= 0 {
		t.Fatalf("stop exit must realize a loss, got %v", res.RealizedPnL)
	}
	if len(rec.results) != 1 {
		t.Fatalf("recorder got %d results", len(rec.results))
	}
	if _, ok := m.Open("BTCUSDT"); ok {
		t.Fatal("position must be cleared after exit")
	}
}

func TestTakeProfitLong(t *testing.T) {
	m := NewManager(testConfig(), &fakeGateway{}, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustOpen(t, m, strategy.EnterLong, 0.01, candleAt(50000, ts))

	up := market.Candle{
		Symbol: "BTCUSDT", OpenTime: ts.Add(time.Hour),
		Open: 50000, High: 53200, Low: 49900, Close: 53100,
		Volume: 100, Closed: true,
	}
	res, err := m.OnCandle(context.Background(), up, nil)
	if err != nil {
		t.Fatalf("on candle: %v", err)
	}
	if res == nil || res.Reason != ReasonTakeProfit {
		t.Fatalf("expected take-profit exit, got %+v", res)
	}
	wantGross := (50000*1.06 - 50000) * 0.01
	wantFees := (50000 + 50000*1.06) * 0.01 * 0.0004
	if math.Abs(res.RealizedPnL-(wantGross-wantFees)) > 1e-9 {
		t.Fatalf("pnl = %v, want %v", res.RealizedPnL, wantGross-wantFees)
	}
}

func TestShortStopLoss(t *testing.T) {
	m := NewManager(testConfig(), &fakeGateway{}, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustOpen(t, m, strategy.EnterShort, 0.01, candleAt(50000, ts))

	up := market.Candle{
		Symbol: "BTCUSDT", OpenTime: ts.Add(time.Hour),
		Open: 50000, High: 51600, Low: 49900, Close: 51500,
		Volume: 100, Closed: true,
	}
	res, err := m.OnCandle(context.Background(), up, nil)
	if err != nil {
		t.Fatalf("on candle: %v", err)
	}
	if res == nil || res.Reason != ReasonStopLoss {
		t.Fatalf("expected stop-loss exit, got %+v", res)
	}
	if res.RealizedPnL >= 0 {
		t.Fatalf("short stopped above entry must lose, got %v", res.RealizedPnL)
	}
}

func TestTrailingStopLong(t *testing.T) {
	m := NewManager(testConfig(), &fakeGateway{}, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustOpen(t, m, strategy.EnterLong, 0.01, candleAt(50000, ts))

	// Rally past the trigger without touching the take profit.
	rally := market.Candle{
		Symbol: "BTCUSDT", OpenTime: ts.Add(time.Hour),
		Open: 50000, High: 52000, Low: 50000, Close: 51900,
		Volume: 100, Closed: true,
	}
	if res, _ := m.OnCandle(context.Background(), rally, nil); res != nil {
		t.Fatalf("rally must not exit, got %+v", res)
	}

	// Give back past the trailing line: 52000 * (1 - 0.015) = 51220.
	fade := market.Candle{
		Symbol: "BTCUSDT", OpenTime: ts.Add(2 * time.Hour),
		Open: 51900, High: 51950, Low: 51000, Close: 51100,
		Volume: 100, Closed: true,
	}
	res, err := m.OnCandle(context.Background(), fade, nil)
	if err != nil {
		t.Fatalf("on candle: %v", err)
	}
	if res == nil || res.Reason != ReasonTrailing {
		t.Fatalf("expected trailing exit, got %+v", res)
	}
	if math.Abs(res.ExitPrice-52000*0.985) > 1e-9 {
		t.Fatalf("exit = %v, want trail price", res.ExitPrice)
	}
	if res.RealizedPnL <= 0 {
		t.Fatalf("trailing exit above entry must win, got %v", res.RealizedPnL)
	}
}

func TestRSIExitLong(t *testing.T) {
	m := NewManager(testConfig(), &fakeGateway{}, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustOpen(t, m, strategy.EnterLong, 0.01, candleAt(50000, ts))

	next := candleAt(50500, ts.Add(time.Hour))
	snap := &indicator.Snapshot{Symbol: "BTCUSDT", Ts: next.OpenTime, RSI: 65, VolumeRatio: 1}
	res, err := m.OnCandle(context.Background(), next, snap)
	if err != nil {
		t.Fatalf("on candle: %v", err)
	}
	if res == nil || res.Reason != ReasonRSIExit {
		t.Fatalf("expected RSI exit, got %+v", res)
	}
	if math.Abs(res.ExitPrice-50500) > 1e-9 {
		t.Fatalf("RSI exit fills at the close, got %v", res.ExitPrice)
	}
}

func TestEntryRetriesThenSucceeds(t *testing.T) {
	gw := &fakeGateway{failSubmits: 1}
	m := NewManager(testConfig(), gw, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mustOpen(t, m, strategy.EnterLong, 0.01, candleAt(50000, ts))
	if len(gw.submits) != 2 {
		t.Fatalf("expected a retry, got %d submits", len(gw.submits))
	}
}

func TestEntryUnconfirmedVenueFlat(t *testing.T) {
	gw := &fakeGateway{failSubmits: 10}
	m := NewManager(testConfig(), gw, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := m.TryOpen(context.Background(), strategy.EnterLong, 0.01, candleAt(50000, ts))
	if !errors.Is(err, ErrExecutionFailure) {
		t.Fatalf("err = %v, want ErrExecutionFailure", err)
	}
	if m.Halted("BTCUSDT") {
		t.Fatal("flat venue must not halt the symbol")
	}
}

func TestEntryUnconfirmedQueryFailsHalts(t *testing.T) {
	gw := &fakeGateway{failSubmits: 10, queryErr: errors.New("query down")}
	m := NewManager(testConfig(), gw, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := m.TryOpen(context.Background(), strategy.EnterLong, 0.01, candleAt(50000, ts))
	if !errors.Is(err, ErrExecutionFailure) {
		t.Fatalf("err = %v, want ErrExecutionFailure", err)
	}
	if !m.Halted("BTCUSDT") {
		t.Fatal("unreconcilable entry must halt the symbol")
	}

	_, err = m.TryOpen(context.Background(), strategy.EnterLong, 0.01, candleAt(49000, ts.Add(time.Hour)))
	if !errors.Is(err, ErrSymbolHalted) {
		t.Fatalf("err = %v, want ErrSymbolHalted", err)
	}
}

func TestEntryAdoptsFillFoundOnVenue(t *testing.T) {
	gw := &fakeGateway{failSubmits: 10, held: 0.01}
	m := NewManager(testConfig(), gw, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	pos := mustOpen(t, m, strategy.EnterLong, 0.01, candleAt(50000, ts))
	if math.Abs(pos.Qty-0.01) > 1e-12 {
		t.Fatalf("adopted qty = %v", pos.Qty)
	}
	if math.Abs(pos.EntryPrice-50000) > 1e-9 {
		t.Fatalf("adopted entry = %v", pos.EntryPrice)
	}
}

func TestCloseUnconfirmedHalts(t *testing.T) {
	gw := &fakeGateway{}
	m := NewManager(testConfig(), gw, nil, zerolog.Nop())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustOpen(t, m, strategy.EnterLong, 0.01, candleAt(50000, ts))

	// Close submits fail and the venue still reports the position held.
	gw.failSubmits = 10
	crash := market.Candle{
		Symbol: "BTCUSDT", OpenTime: ts.Add(time.Hour),
		Open: 50000, High: 50000, Low: 48000, Close: 48100,
		Volume: 100, Closed: true,
	}
	_, err := m.OnCandle(context.Background(), crash, nil)
	if !errors.Is(err, ErrExecutionFailure) {
		t.Fatalf("err = %v, want ErrExecutionFailure", err)
	}
	if !m.Halted("BTCUSDT") {
		t.Fatal("unconfirmed close must halt the symbol")
	}
}

func TestOnCandleNoPositionIsNoop(t *testing.T) {
	m := NewManager(testConfig(), &fakeGateway{}, nil, zerolog.Nop())
	res, err := m.OnCandle(context.Background(), candleAt(50000, time.Now()), nil)
	if err != nil || res != nil {
		t.Fatalf("expected noop, got res=%+v err=%v", res, err)
	}
}
