package market

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ugurhss/3x-trading-bot/internal/metrics"
)

const (
	// ProviderStub emits deterministic synthetic candles (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams closed klines from Binance USD-M futures websockets.
	ProviderBinance = "binance"
	// ProviderCSV replays candles from flat files, restartable for backtests.
	ProviderCSV = "csv"
)

// Feed represents a pluggable candle stream implementation.
type Feed struct {
	provider   string
	symbols    []string
	interval   string
	log        zerolog.Logger
	restURL    string
	streamURL  string
	preload    int
	csvDir     string
	lastPrices map[string]float64
	mu         sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultInterval  = "1h"
	defaultRESTURL   = "https://fapi.binance.com"
	defaultStreamURL = "wss://fstream.binance.com"
)

// WithInterval overrides the default candle interval (Binance notation, e.g. "1h").
func WithInterval(interval string) Option {
	return func(f *Feed) {
		if interval != "" {
			f.interval = interval
		}
	}
}

// WithEndpoints injects REST and websocket base URLs, mainly for tests.
func WithEndpoints(restURL, streamURL string) Option {
	return func(f *Feed) {
		if restURL != "" {
			f.restURL = strings.TrimSuffix(restURL, "/")
		}
		if streamURL != "" {
			f.streamURL = strings.TrimSuffix(streamURL, "/")
		}
	}
}

// WithPreload sets how many historical candles per symbol are fetched over
// REST before the live stream starts, so indicators open warm.
func WithPreload(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.preload = n
		}
	}
}

// WithCSVDir points the csv provider at a directory of <SYMBOL>.csv files.
func WithCSVDir(dir string) Option {
	return func(f *Feed) { f.csvDir = dir }
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:   strings.ToLower(provider),
		interval:   defaultInterval,
		log:        log,
		restURL:    defaultRESTURL,
		streamURL:  defaultStreamURL,
		lastPrices: make(map[string]float64),
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// LastPrice reports the close of the most recent candle seen for a symbol.
func (f *Feed) LastPrice(symbol string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastPrices[symbol]
}

func (f *Feed) markPrice(symbol string, px float64) {
	f.mu.Lock()
	f.lastPrices[symbol] = px
	f.mu.Unlock()
}

// Run pushes closed candles onto the provided channel until the context is
// canceled. The sequence per symbol is ordered by open time.
func (f *Feed) Run(ctx context.Context, out chan<- Candle) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	case ProviderCSV:
		return f.runCSV(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) emit(ctx context.Context, out chan<- Candle, c Candle) error {
	select {
	case out <- c:
		f.markPrice(c.Symbol, c.Close)
		metrics.CandlesTotal.WithLabelValues(c.Symbol).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- Candle) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	px := 100.0
	open := time.Now().Truncate(time.Hour)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			px += 0.1
			open = open.Add(time.Hour)
			for _, s := range f.snapshotSymbols() {
				c := Candle{
					Symbol:   s,
					OpenTime: open,
					Open:     px - 0.1,
					High:     px + 0.05,
					Low:      px - 0.15,
					Close:    px,
					Volume:   1000,
					Closed:   true,
				}
				if err := f.emit(ctx, out, c); err != nil {
					return err
				}
			}
		}
	}
}
