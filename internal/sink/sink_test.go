package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/logger"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/metrics"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/notification"
)

var ts = time.Date(2024, 5, 6, 14, 35, 0, 0, time.UTC)

func testCandle() model.Candle {
	return model.Candle{Symbol: "SPY", Timeframe: "5m", TS: ts, Close: 512.25}
}

func testSignal(typ model.SignalType) *model.TradeSignal {
	return model.NewTradeSignal("eng", testCandle(), model.IndicatorSnapshot{
		TrendDirection:      model.TrendUp,
		OscillatorPosition:  model.OscillatorBullish,
		OscillatorHistogram: 0.125,
	}, typ, model.Bullish, model.TriggerConfluence)
}

func TestLogSink_WritesSignalWithTrace(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(logger.New(&buf, "test", slog.LevelInfo))

	assert.False(t, s.Matches(testCandle()))
	require.True(t, s.Matches(testSignal(model.SignalOpen)))

	ctx := logger.WithTraceID(context.Background(), "SPY-1")
	require.NoError(t, s.ProcessEvent(ctx, testSignal(model.SignalOpen)))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "trade signal", rec["msg"])
	assert.Equal(t, "OPEN", rec["signal_type"])
	assert.Equal(t, "confluence", rec["trigger"])
	assert.Equal(t, "SPY-1", rec["trace_id"])
}

type memWriter struct {
	got []*model.TradeSignal
	err error
}

func (m *memWriter) WriteSignal(ctx context.Context, sig *model.TradeSignal) error {
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, sig)
	return nil
}

func TestStoreSink(t *testing.T) {
	w := &memWriter{}
	s := NewStoreSink("sqlite", w)
	sig := testSignal(model.SignalOpen)

	require.NoError(t, s.ProcessEvent(context.Background(), sig))
	require.Len(t, w.got, 1)
	assert.Same(t, sig, w.got[0])

	boom := errors.New("locked")
	w.err = boom
	err := s.ProcessEvent(context.Background(), sig)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "sqlite")

	var nilSig *model.TradeSignal
	assert.False(t, s.Matches(nilSig))
}

func TestCandleRecorder_NeverBlocks(t *testing.T) {
	ch := make(chan model.Candle, 1)
	r := NewCandleRecorder(ch, "5m")
	var drops int
	r.OnDrop = func() { drops++ }

	other := testCandle()
	other.Timeframe = "1m"
	assert.False(t, r.Matches(other))
	assert.False(t, r.Matches(testSignal(model.SignalOpen)))

	require.NoError(t, r.ProcessEvent(context.Background(), testCandle()))
	require.NoError(t, r.ProcessEvent(context.Background(), testCandle()))
	assert.Len(t, ch, 1)
	assert.Equal(t, 1, drops)
}

type captureNotifier struct {
	alerts []notification.Alert
	err    error
}

func (c *captureNotifier) Send(ctx context.Context, a notification.Alert) error {
	c.alerts = append(c.alerts, a)
	return c.err
}

func TestAlertSink_BestEffort(t *testing.T) {
	n := &captureNotifier{err: errors.New("telegram down")}
	s := NewAlertSink(n, 0)

	assert.NoError(t, s.ProcessEvent(context.Background(), testSignal(model.SignalClose)))
	require.Len(t, n.alerts, 1)
	a := n.alerts[0]
	assert.Equal(t, notification.AlertWarning, a.Level)
	assert.Equal(t, "CLOSE BULLISH SPY", a.Title)
	assert.Contains(t, a.Message, "512.25")
	assert.Equal(t, "0.1250", a.Fields["histogram"])
	assert.Equal(t, "Up", a.Fields["trend"])
}

func TestAlertFor_OpenIsInfo(t *testing.T) {
	assert.Equal(t, notification.AlertInfo, AlertFor(testSignal(model.SignalOpen)).Level)
}

func TestMetricsSink(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := NewMetricsSink(m)
	s.now = func() time.Time { return ts.Add(3 * time.Second) }
	ctx := context.Background()

	require.True(t, s.Matches(testCandle()))
	require.NoError(t, s.ProcessEvent(ctx, testCandle()))
	require.NoError(t, s.ProcessEvent(ctx, testSignal(model.SignalOpen)))
	require.NoError(t, s.ProcessEvent(ctx, testSignal(model.SignalOpen)))
	require.NoError(t, s.ProcessEvent(ctx, testSignal(model.SignalClose)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandlesTotal.WithLabelValues("5m")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CandleLag))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SignalsTotal.WithLabelValues("OPEN", "BULLISH", "confluence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenPositions))
}
