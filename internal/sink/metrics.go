package sink

import (
	"context"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/metrics"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// MetricsSink counts candles and signals flowing through the router.
type MetricsSink struct {
	m   *metrics.Metrics
	now func() time.Time
}

func NewMetricsSink(m *metrics.Metrics) *MetricsSink {
	return &MetricsSink{m: m, now: time.Now}
}

func (s *MetricsSink) Matches(ev model.Event) bool {
	switch ev.(type) {
	case model.Candle, *model.TradeSignal:
		return true
	}
	return false
}

func (s *MetricsSink) ProcessEvent(ctx context.Context, ev model.Event) error {
	switch e := ev.(type) {
	case model.Candle:
		s.m.CandlesTotal.WithLabelValues(e.Timeframe).Inc()
		s.m.CandleLag.Set(s.now().Sub(e.TS).Seconds())
	case *model.TradeSignal:
		if e == nil {
			return nil
		}
		s.m.SignalsTotal.WithLabelValues(string(e.SignalType), string(e.Direction), string(e.Trigger)).Inc()
		switch e.SignalType {
		case model.SignalOpen:
			s.m.OpenPositions.Inc()
		case model.SignalClose:
			s.m.OpenPositions.Dec()
		}
	}
	return nil
}
