// Package sink holds the router processors that consume trade signals and
// candles on their way out of the engine: storage, logging, metrics and
// alerts.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/logger"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

func signalOf(ev model.Event) (*model.TradeSignal, bool) {
	sig, ok := ev.(*model.TradeSignal)
	return sig, ok && sig != nil
}

func isSignal(ev model.Event) bool {
	_, ok := signalOf(ev)
	return ok
}

// LogSink writes every trade signal as a structured log line.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default.
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{log: l}
}

func (s *LogSink) Matches(ev model.Event) bool { return isSignal(ev) }

func (s *LogSink) ProcessEvent(ctx context.Context, ev model.Event) error {
	sig, ok := signalOf(ev)
	if !ok {
		return nil
	}
	attrs := append([]any{
		slog.String("id", sig.ID),
		slog.String("symbol", sig.Symbol),
		slog.String("timeframe", sig.Timeframe),
		slog.String("signal_type", string(sig.SignalType)),
		slog.String("direction", string(sig.Direction)),
		slog.String("trigger", string(sig.Trigger)),
		slog.Float64("close", sig.ClosePrice),
		slog.Time("ts", sig.TS),
	}, logger.LogWithTrace(ctx)...)
	s.log.InfoContext(ctx, "trade signal", attrs...)
	return nil
}

// StoreSink persists trade signals through a SignalWriter. Write errors
// abort the dispatch.
type StoreSink struct {
	name string
	w    model.SignalWriter
}

// NewStoreSink wraps w; name labels its errors.
func NewStoreSink(name string, w model.SignalWriter) *StoreSink {
	return &StoreSink{name: name, w: w}
}

func (s *StoreSink) Matches(ev model.Event) bool { return isSignal(ev) }

func (s *StoreSink) ProcessEvent(ctx context.Context, ev model.Event) error {
	sig, ok := signalOf(ev)
	if !ok {
		return nil
	}
	if err := s.w.WriteSignal(ctx, sig); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

// CandleRecorder forwards candles to a batching writer. The send never
// blocks the dispatch; a full channel drops the candle.
type CandleRecorder struct {
	out       chan<- model.Candle
	timeframe string

	OnDrop func()
}

// NewCandleRecorder records candles of timeframe (empty for all) to out.
func NewCandleRecorder(out chan<- model.Candle, timeframe string) *CandleRecorder {
	return &CandleRecorder{out: out, timeframe: timeframe}
}

func (r *CandleRecorder) Matches(ev model.Event) bool {
	c, ok := ev.(model.Candle)
	return ok && (r.timeframe == "" || c.Timeframe == r.timeframe)
}

func (r *CandleRecorder) ProcessEvent(ctx context.Context, ev model.Event) error {
	c, ok := ev.(model.Candle)
	if !ok {
		return nil
	}
	select {
	case r.out <- c:
	default:
		if r.OnDrop != nil {
			r.OnDrop()
		}
	}
	return nil
}
