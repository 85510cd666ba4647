package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// runCSV replays each symbol's <SYMBOL>.csv file in open-time order. Rows are
// "open_time,open,high,low,close,volume" with open_time as unix millis or
// RFC3339; a header row is skipped. Replay is restartable: every Run starts
// from the top of the files.
func (f *Feed) runCSV(ctx context.Context, out chan<- Candle) error {
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("csv feed requires at least one symbol")
	}
	if f.csvDir == "" {
		return fmt.Errorf("csv feed requires a data directory")
	}

	for _, sym := range symbols {
		path := filepath.Join(f.csvDir, sym+".csv")
		if err := f.replayFile(ctx, out, sym, path); err != nil {
			return fmt.Errorf("replay %s: %w", sym, err)
		}
	}
	return nil
}

func (f *Feed) replayFile(ctx context.Context, out chan<- Candle, symbol, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 6
	line := 0
	emitted := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		line++
		c, err := parseCSVRow(symbol, record)
		if err != nil {
			if line == 1 {
				continue // header
			}
			f.log.Warn().Err(err).Str("sym", symbol).Int("line", line).Msg("skipping malformed csv row")
			continue
		}
		if err := f.emit(ctx, out, c); err != nil {
			return err
		}
		emitted++
	}
	f.log.Info().Str("sym", symbol).Int("candles", emitted).Msg("csv replay complete")
	return nil
}

func parseCSVRow(symbol string, record []string) (Candle, error) {
	ts, err := parseTimestamp(strings.TrimSpace(record[0]))
	if err != nil {
		return Candle{}, err
	}
	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return Candle{}, err
		}
		vals[i-1] = v
	}
	return Candle{
		Symbol:   symbol,
		OpenTime: ts,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
		Closed:   true,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, s)
}
