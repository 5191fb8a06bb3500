package sigengine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmandeng/tastytrade-sdk-sub001/config"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/notification"
	sqlitestore "github.com/xmandeng/tastytrade-sdk-sub001/internal/store/sqlite"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

// priceSource derives the snapshot from the newest candle: trend is Up when
// Open >= 100, the oscillator is bullish when Close >= 100.
type priceSource struct{}

func (priceSource) Snapshot(history []model.Candle) (model.IndicatorSnapshot, bool) {
	if len(history) == 0 {
		return model.IndicatorSnapshot{}, false
	}
	last := history[len(history)-1]
	snap := model.IndicatorSnapshot{
		TrendDirection:     model.TrendDown,
		TrendValue:         last.Open,
		OscillatorPosition: model.OscillatorBearish,
	}
	if last.Open >= 100 {
		snap.TrendDirection = model.TrendUp
	}
	if last.Close >= 100 {
		snap.OscillatorPosition = model.OscillatorBullish
	}
	return snap, true
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (c *captureNotifier) Send(ctx context.Context, a notification.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

// writeCSV writes "open/close" pairs as consecutive candles of symbol.
func writeCSV(t *testing.T, dir, name, symbol, tf string, step time.Duration, start time.Time, oc ...[2]float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("symbol,timeframe,ts,open,high,low,close,volume\n")
	for i, p := range oc {
		ts := start.Add(time.Duration(i) * step).Format(time.RFC3339)
		fmt.Fprintf(&b, "%s,%s,%s,%g,%g,%g,%g,1\n", symbol, tf, ts, p[0], p[0]+1, p[1]-1, p[1])
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(dir, csvPath string) *config.Config {
	return &config.Config{
		EngineID:      "test-engine",
		Source:        config.SourceCSV,
		Timeframe:     "5m",
		BaseTimeframe: "5m",
		CSVPath:       csvPath,
		SQLitePath:    filepath.Join(dir, "db", "signals.db"),
		HistorySize:   50,
		Shards:        2,
		ShardBuffer:   16,
	}
}

func runService(t *testing.T, cfg *config.Config, n notification.Notifier) *Service {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	svc, err := New(cfg, logger,
		WithRegisterer(prometheus.NewRegistry()),
		WithIndicatorSource(priceSource{}),
		WithNotifier(n),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, svc.Run(ctx))
	return svc
}

func TestService_CSVReplayPersistsSignals(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCSV(t, dir, "aapl.csv", "AAPL", "5m", 5*time.Minute, t0,
		[2]float64{90, 90},   // seed: Down, bearish
		[2]float64{110, 90},  // trend flips Up: armed
		[2]float64{110, 110}, // oscillator agrees: OPEN
		[2]float64{110, 110}, // quiescent
		[2]float64{90, 110},  // trend flips Down: CLOSE
	)
	cfg := testConfig(dir, csvPath)
	alerts := &captureNotifier{}

	svc := runService(t, cfg, alerts)

	st, ok := svc.Engine().State("AAPL")
	require.True(t, ok)
	assert.Equal(t, model.PositionFlat, st.Position)
	assert.True(t, st.LastTS.Equal(t0.Add(20*time.Minute)))
	assert.Equal(t, 2, alerts.count())
	assert.Equal(t, int64(2), svc.Hub().SymbolSeq("AAPL"))

	r, err := sqlitestore.NewReader(cfg.SQLitePath)
	require.NoError(t, err)
	defer r.Close()

	sigs, err := r.ReadSignals("AAPL", 0)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, model.SignalOpen, sigs[0].SignalType)
	assert.Equal(t, model.Bullish, sigs[0].Direction)
	assert.Equal(t, model.TriggerConfluence, sigs[0].Trigger)
	assert.Equal(t, model.SignalClose, sigs[1].SignalType)
	assert.Equal(t, model.TriggerTrend, sigs[1].Trigger)
	assert.Equal(t, "test-engine", sigs[1].EngineID)

	candles, err := r.ReadCandles("AAPL", "5m", 0)
	require.NoError(t, err)
	assert.Len(t, candles, 5, "csv candles are recorded")
}

func TestService_RestoresSnapshotOnRestart(t *testing.T) {
	dir := t.TempDir()
	first := writeCSV(t, dir, "first.csv", "AAPL", "5m", 5*time.Minute, t0,
		[2]float64{90, 90},
		[2]float64{110, 90}, // trend armed bullish
	)
	cfg := testConfig(dir, first)
	runService(t, cfg, &captureNotifier{})

	// The oscillator completes the confluence on the first candle after the
	// restart, which only works if the arming was restored.
	second := writeCSV(t, dir, "second.csv", "AAPL", "5m", 5*time.Minute, t0.Add(10*time.Minute),
		[2]float64{110, 110},
	)
	cfg.CSVPath = second
	alerts := &captureNotifier{}
	svc := runService(t, cfg, alerts)

	st, ok := svc.Engine().State("AAPL")
	require.True(t, ok)
	assert.Equal(t, model.PositionBullish, st.Position)
	assert.Equal(t, 1, alerts.count())
}

func TestService_ReplayAfterRestoreSkipsProcessedCandles(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCSV(t, dir, "aapl.csv", "AAPL", "5m", 5*time.Minute, t0,
		[2]float64{90, 90},
		[2]float64{110, 90},
		[2]float64{110, 110}, // OPEN
		[2]float64{90, 110},  // CLOSE
		[2]float64{110, 110},
	)
	cfg := testConfig(dir, csvPath)
	runService(t, cfg, &captureNotifier{})

	// Replaying the same history from the start restores the final
	// checkpoint; every candle is behind its clock.
	alerts := &captureNotifier{}
	svc := runService(t, cfg, alerts)
	assert.Zero(t, alerts.count())

	st, ok := svc.Engine().State("AAPL")
	require.True(t, ok)
	assert.True(t, st.LastTS.Equal(t0.Add(20*time.Minute)))

	r, err := sqlitestore.NewReader(cfg.SQLitePath)
	require.NoError(t, err)
	defer r.Close()
	sigs, err := r.ReadSignals("AAPL", 0)
	require.NoError(t, err)
	assert.Len(t, sigs, 2)
}

func TestService_ResamplesBaseTimeframe(t *testing.T) {
	dir := t.TempDir()
	var oc [][2]float64
	for i := 0; i < 10; i++ {
		oc = append(oc, [2]float64{90, 90})
	}
	csvPath := writeCSV(t, dir, "1m.csv", "MSFT", "1m", time.Minute, t0, oc...)
	cfg := testConfig(dir, csvPath)
	cfg.BaseTimeframe = "1m"

	runService(t, cfg, &captureNotifier{})

	r, err := sqlitestore.NewReader(cfg.SQLitePath)
	require.NoError(t, err)
	defer r.Close()

	candles, err := r.ReadCandles("MSFT", "5m", 0)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[1].TS.Equal(t0.Add(5*time.Minute)))
	assert.Equal(t, 5.0, candles[0].Volume)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t.TempDir(), "")
	_, err := New(cfg, slog.Default(), WithRegisterer(prometheus.NewRegistry()))
	assert.Error(t, err)
}
