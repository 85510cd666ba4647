package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type binanceEnvelope struct {
	Stream string           `json:"stream"`
	Data   binanceKlineData `json:"data"`
}

type binanceKlineData struct {
	Symbol string       `json:"s"`
	Kline  binanceKline `json:"k"`
}

type binanceKline struct {
	OpenTime int64  `json:"t"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	IsClosed bool   `json:"x"`
}

func (f *Feed) runBinance(ctx context.Context, out chan<- Candle) error {
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	if f.preload > 0 {
		if err := f.preloadHistory(ctx, out, symbols); err != nil {
			return fmt.Errorf("preload klines: %w", err)
		}
	}

	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@kline_" + f.interval
	}

	url := fmt.Sprintf("%s/stream?streams=%s", f.streamURL, strings.Join(streams, "/"))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

// preloadHistory fetches recent closed klines over REST so that indicator
// windows are full before the first live candle arrives.
func (f *Feed) preloadHistory(ctx context.Context, out chan<- Candle, symbols []string) error {
	client := &http.Client{Timeout: 15 * time.Second}
	for _, sym := range symbols {
		url := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s&limit=%d",
			f.restURL, sym, f.interval, f.preload+1)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("klines %s: status %d", sym, resp.StatusCode)
		}

		var rows [][]any
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode klines %s: %w", sym, err)
		}
		// The final row is the still-forming interval; drop it.
		if len(rows) > 0 {
			rows = rows[:len(rows)-1]
		}
		for _, row := range rows {
			c, err := parseKlineRow(sym, row)
			if err != nil {
				f.log.Warn().Err(err).Str("sym", sym).Msg("skipping malformed kline row")
				continue
			}
			if err := f.emit(ctx, out, c); err != nil {
				return err
			}
		}
		f.log.Info().Str("sym", sym).Int("candles", len(rows)).Msg("preloaded kline history")
	}
	return nil
}

func parseKlineRow(symbol string, row []any) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}
	openMs, ok := row[0].(float64)
	if !ok {
		return Candle{}, fmt.Errorf("kline open time is %T", row[0])
	}
	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		s, ok := row[i].(string)
		if !ok {
			return Candle{}, fmt.Errorf("kline field %d is %T", i, row[i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, err
		}
		vals[i-1] = v
	}
	return Candle{
		Symbol:   symbol,
		OpenTime: time.UnixMilli(int64(openMs)),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
		Closed:   true,
	}, nil
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, out chan<- Candle) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Strs("symbols", f.snapshotSymbols()).Str("interval", f.interval).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env binanceEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}
		k := env.Data.Kline
		if !k.IsClosed {
			continue
		}
		c, err := parseStreamKline(env.Data.Symbol, k)
		if err != nil {
			f.log.Warn().Err(err).Msg("invalid kline from binance")
			continue
		}
		if err := f.emit(ctx, out, c); err != nil {
			return err
		}
	}
}

func parseStreamKline(symbol string, k binanceKline) (Candle, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	vals := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, err
		}
		vals[i] = v
	}
	return Candle{
		Symbol:   strings.ToUpper(symbol),
		OpenTime: time.UnixMilli(k.OpenTime),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
		Closed:   true,
	}, nil
}
