package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CandlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candles_total", Help: "Count of closed candles ingested"},
		[]string{"symbol"},
	)
	StaleCandlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stale_candles_total", Help: "Candles dropped for duplicate or regressing open time"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Entry/exit signals emitted by the strategy"},
		[]string{"symbol", "kind"},
	)
	SignalConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_conflicts_total", Help: "Ticks where long and short conditions qualified together"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Closed trades by outcome"},
		[]string{"symbol", "outcome"},
	)
	ConsecutiveLosses = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "consecutive_losses", Help: "Current losing streak tracked by the circuit breaker"},
		[]string{"scope"},
	)
	TradingPaused = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "trading_paused", Help: "1 while the circuit breaker holds entries shut"},
		[]string{"scope"},
	)
	AccountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "account_equity", Help: "Marked account equity in quote currency"},
	)
)

func init() {
	prometheus.MustRegister(
		CandlesTotal, StaleCandlesTotal,
		SignalsTotal, SignalConflictsTotal,
		OrdersTotal, TradesTotal,
		ConsecutiveLosses, TradingPaused, AccountEquity,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
