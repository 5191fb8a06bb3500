// Package csvfeed loads candles from CSV files so recorded or exported
// history can be replayed through the engine.
//
// Expected header: symbol,timeframe,ts,open,high,low,close,volume. The ts
// column accepts RFC 3339 or Unix seconds. An empty timeframe column takes the
// reader's default timeframe.
package csvfeed

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

type row struct {
	Symbol    string  `csv:"symbol"`
	Timeframe string  `csv:"timeframe"`
	TS        string  `csv:"ts"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// Reader holds a CSV file's candles in memory and implements
// model.CandleReader.
type Reader struct {
	candles []model.Candle
}

// Open loads a CSV file.
func Open(path, defaultTF string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvfeed: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, defaultTF)
}

// Parse decodes CSV candles from r. Candles are sorted by timestamp, ties keep
// file order.
func Parse(r io.Reader, defaultTF string) (*Reader, error) {
	var rows []row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("csvfeed: decode: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, rw := range rows {
		if rw.Symbol == "" {
			return nil, fmt.Errorf("csvfeed: row %d: missing symbol", i+1)
		}
		ts, err := parseTS(rw.TS)
		if err != nil {
			return nil, fmt.Errorf("csvfeed: row %d: %w", i+1, err)
		}
		tf := rw.Timeframe
		if tf == "" {
			tf = defaultTF
		}
		candles = append(candles, model.Candle{
			Symbol:    rw.Symbol,
			Timeframe: tf,
			TS:        ts,
			Open:      rw.Open,
			High:      rw.High,
			Low:       rw.Low,
			Close:     rw.Close,
			Volume:    rw.Volume,
		})
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].TS.Before(candles[j].TS)
	})
	return &Reader{candles: candles}, nil
}

func parseTS(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ts %q", s)
	}
	return ts.UTC(), nil
}

// Len returns the number of loaded candles.
func (r *Reader) Len() int { return len(r.candles) }

// ReadCandles returns one series' candles after afterTS (unix seconds).
func (r *Reader) ReadCandles(symbol, timeframe string, afterTS int64) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range r.candles {
		if c.Symbol == symbol && c.Timeframe == timeframe && c.TS.Unix() > afterTS {
			out = append(out, c)
		}
	}
	return out, nil
}

// ReadAllCandles returns every candle of one timeframe after afterTS.
func (r *Reader) ReadAllCandles(timeframe string, afterTS int64) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range r.candles {
		if c.Timeframe == timeframe && c.TS.Unix() > afterTS {
			out = append(out, c)
		}
	}
	return out, nil
}

// Write encodes candles in the format Parse reads, with RFC 3339 timestamps.
func Write(w io.Writer, candles []model.Candle) error {
	rows := make([]row, len(candles))
	for i, c := range candles {
		rows[i] = row{
			Symbol:    c.Symbol,
			Timeframe: c.Timeframe,
			TS:        c.TS.UTC().Format(time.RFC3339),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("csvfeed: encode: %w", err)
	}
	return nil
}
