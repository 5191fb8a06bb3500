package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func openTemp(t *testing.T, engineID string) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signals.db")
	w, err := New(WriterConfig{DBPath: path, EngineID: engineID})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func candleAt(sym string, i int, close float64) model.Candle {
	return model.Candle{
		Symbol: sym, Timeframe: "1m", TS: t0.Add(time.Duration(i) * time.Minute),
		Open: close - 1, High: close + 1, Low: close - 2, Close: close, Volume: 1000,
	}
}

func TestCandles_InsertAndRead(t *testing.T) {
	w, r := openTemp(t, "eng")

	require.NoError(t, w.InsertCandles([]model.Candle{
		candleAt("SPY", 0, 470), candleAt("SPY", 1, 471), candleAt("QQQ", 0, 400), candleAt("SPY", 2, 472),
	}))

	spy, err := r.ReadCandles("SPY", "1m", 0)
	require.NoError(t, err)
	require.Len(t, spy, 3)
	assert.Equal(t, candleAt("SPY", 0, 470), spy[0])
	assert.Equal(t, 472.0, spy[2].Close)

	after, err := r.ReadCandles("SPY", "1m", t0.Unix())
	require.NoError(t, err)
	assert.Len(t, after, 2)

	all, err := r.ReadAllCandles("1m", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "QQQ", all[0].Symbol, "same ts ordered by symbol")

	last, err := w.GetLastTimestamp("SPY", "1m")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(2*time.Minute).Unix(), last)

	none, err := w.GetLastTimestamp("IWM", "1m")
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestCandles_ReinsertReplaces(t *testing.T) {
	w, r := openTemp(t, "eng")
	require.NoError(t, w.InsertCandles([]model.Candle{candleAt("SPY", 0, 470)}))
	require.NoError(t, w.InsertCandles([]model.Candle{candleAt("SPY", 0, 475)}))

	got, err := r.ReadCandles("SPY", "1m", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 475.0, got[0].Close)
}

func TestRun_FlushesOnClose(t *testing.T) {
	w, r := openTemp(t, "eng")
	var committed int
	w.onCommit = func(n int, d time.Duration) { committed += n }

	ch := make(chan model.Candle, 10)
	for i := 0; i < 5; i++ {
		ch <- candleAt("SPY", i, 470+float64(i))
	}
	close(ch)
	w.Run(context.Background(), ch)

	got, err := r.ReadCandles("SPY", "1m", 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, 5, committed)
}

func TestWriteSignal_Idempotent(t *testing.T) {
	w, r := openTemp(t, "eng")
	sig := model.NewTradeSignal("eng", candleAt("SPY", 3, 471.5), model.IndicatorSnapshot{
		TrendDirection: model.TrendUp, TrendValue: 470.9, OscillatorPosition: model.OscillatorBullish,
	}, model.SignalOpen, model.Bullish, model.TriggerConfluence)

	ctx := context.Background()
	require.NoError(t, w.WriteSignal(ctx, sig))
	require.NoError(t, w.WriteSignal(ctx, sig))

	got, err := r.ReadSignals("SPY", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sig.ID, got[0].ID)
	assert.Equal(t, model.TriggerConfluence, got[0].Trigger)
	assert.Equal(t, model.TrendUp, got[0].TrendDirection)
	assert.True(t, got[0].TS.Equal(sig.TS))

	var eventType string
	require.NoError(t, w.DB().QueryRow(`SELECT event_type FROM trade_signals WHERE id = ?`, sig.ID).Scan(&eventType))
	assert.Equal(t, model.EventTradeSignal, eventType)

	all, err := r.ReadSignals("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSnapshots_LatestPerEngine(t *testing.T) {
	w, _ := openTemp(t, "eng-a")
	ctx := context.Background()

	data, err := w.ReadLatestSnapshotJSON(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	for i := 0; i < snapshotsKept+5; i++ {
		require.NoError(t, w.SaveSnapshotJSON(ctx, []byte(fmt.Sprintf(`{"n":%d}`, i))))
	}
	require.NoError(t, w.SaveSnapshotJSON(ctx, []byte(`{"latest":true}`)))

	data, err = w.ReadLatestSnapshotJSON(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"latest":true}`, string(data))

	var n int
	require.NoError(t, w.DB().QueryRow(`SELECT COUNT(*) FROM engine_snapshots`).Scan(&n))
	assert.Equal(t, snapshotsKept, n)

	// Another engine sharing the file sees none of them.
	other := &Writer{db: w.db, engineID: "eng-b"}
	data, err = other.ReadLatestSnapshotJSON(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}
