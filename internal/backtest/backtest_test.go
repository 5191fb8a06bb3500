package backtest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/marketdata/csvfeed"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

// priceSource: trend Up when Open >= 100, oscillator bullish when Close >= 100.
type priceSource struct{}

func (priceSource) Snapshot(history []model.Candle) (model.IndicatorSnapshot, bool) {
	if len(history) == 0 {
		return model.IndicatorSnapshot{}, false
	}
	last := history[len(history)-1]
	snap := model.IndicatorSnapshot{TrendDirection: model.TrendDown, OscillatorPosition: model.OscillatorBearish}
	if last.Open >= 100 {
		snap.TrendDirection = model.TrendUp
	}
	if last.Close >= 100 {
		snap.OscillatorPosition = model.OscillatorBullish
	}
	return snap, true
}

func feed(t *testing.T, tf string, step time.Duration, series map[string][][2]float64) *csvfeed.Reader {
	t.Helper()
	var b strings.Builder
	b.WriteString("symbol,timeframe,ts,open,high,low,close,volume\n")
	for sym, oc := range series {
		for i, p := range oc {
			ts := t0.Add(time.Duration(i) * step).Format(time.RFC3339)
			fmt.Fprintf(&b, "%s,%s,%s,%g,%g,%g,%g,1\n", sym, tf, ts, p[0], p[0], p[1], p[1])
		}
	}
	r, err := csvfeed.Parse(strings.NewReader(b.String()), tf)
	require.NoError(t, err)
	return r
}

func TestRun_TradesAndSummary(t *testing.T) {
	r := feed(t, "5m", 5*time.Minute, map[string][][2]float64{
		// OPEN bullish at close 110, CLOSE at 121: +10%.
		"AAPL": {{90, 90}, {110, 90}, {110, 110}, {110, 121}, {90, 121}},
		// OPEN bearish at close 90, CLOSE at 99: -10%; then OPEN again, left open.
		"MSFT": {{110, 110}, {90, 110}, {90, 90}, {90, 99}, {110, 99}, {110, 110}, {90, 90}},
	})

	rep, err := Run(context.Background(), Options{
		Reader:      r,
		Timeframe:   "5m",
		HistorySize: 50,
		EngineID:    "bt",
		Source:      priceSource{},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, rep.Candles)
	require.Len(t, rep.Trades, 2)

	sums := rep.Summaries()
	require.Len(t, sums, 2)

	aapl := sums[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, 2, aapl.Signals)
	assert.Equal(t, 1, aapl.Wins)
	assert.InDelta(t, 0.10, aapl.MeanReturn, 1e-9)
	assert.False(t, aapl.Open)

	msft := sums[1]
	assert.Equal(t, "MSFT", msft.Symbol)
	assert.Equal(t, 3, msft.Signals)
	assert.Equal(t, 1, msft.Trades)
	assert.Equal(t, 0, msft.Wins)
	assert.InDelta(t, -0.10, msft.MedianReturn, 1e-9)
	assert.True(t, msft.Open)
	assert.Equal(t, model.Bearish, rep.Open["MSFT"].Direction)

	var table bytes.Buffer
	rep.RenderTable(&table)
	assert.Contains(t, table.String(), "AAPL")
	assert.Contains(t, table.String(), "10.00%")

	var out bytes.Buffer
	require.NoError(t, rep.WriteSignalsCSV(&out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 6, "header plus 5 signals")
	assert.True(t, strings.HasPrefix(lines[0], "id,symbol,timeframe,ts,signal_type"))
}

func TestRun_SymbolFilterAndResample(t *testing.T) {
	r := feed(t, "1m", time.Minute, map[string][][2]float64{
		"AAPL": make([][2]float64, 10),
		"MSFT": make([][2]float64, 10),
	})

	rep, err := Run(context.Background(), Options{
		Reader:        r,
		Symbols:       []string{"AAPL"},
		BaseTimeframe: "1m",
		Timeframe:     "5m",
		HistorySize:   50,
		Source:        priceSource{},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Candles)
	assert.Empty(t, rep.Signals)
}

func TestRun_Cancelled(t *testing.T) {
	r := feed(t, "5m", 5*time.Minute, map[string][][2]float64{"AAPL": {{90, 90}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{Reader: r, Timeframe: "5m", Source: priceSource{}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTradeReturn(t *testing.T) {
	long := Trade{Direction: model.Bullish, OpenPrice: 100, ClosePrice: 105}
	short := Trade{Direction: model.Bearish, OpenPrice: 100, ClosePrice: 105}
	assert.InDelta(t, 0.05, long.Return(), 1e-9)
	assert.InDelta(t, -0.05, short.Return(), 1e-9)
	assert.Zero(t, Trade{}.Return())
}
