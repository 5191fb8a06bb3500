package indicator

import (
	"math"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// Source produces an IndicatorSnapshot from a candle history, oldest first.
// Implementations must be deterministic and free of side effects. ok is false
// when no snapshot is available (history too short, numeric error).
type Source interface {
	Snapshot(history []model.Candle) (snap model.IndicatorSnapshot, ok bool)
}

// Config holds the indicator periods.
type Config struct {
	HMAPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
}

// DefaultConfig returns HMA(20) and MACD(12, 26, 9).
func DefaultConfig() Config {
	return Config{HMAPeriod: 20, MACDFast: 12, MACDSlow: 26, MACDSignal: 9}
}

// TrendReading is the output of Trend.
type TrendReading struct {
	Direction model.TrendDirection
	Value     float64
}

// OscillatorReading is the output of Oscillator.
type OscillatorReading struct {
	Line      float64
	Signal    float64
	Histogram float64
	Position  model.OscillatorPosition
}

// Trend runs HMA(period) over the history closes. The direction is Up while
// the HMA rises and Down while it falls; a flat step keeps the previous
// direction. ok is false until the HMA has produced a first slope.
func Trend(history []model.Candle, period int) (TrendReading, bool) {
	hma := NewHMA(period)
	var (
		prev     float64
		havePrev bool
		dir      model.TrendDirection
	)
	for i := range history {
		hma.Update(history[i].Close)
		if !hma.Ready() {
			continue
		}
		v := hma.Value()
		if havePrev {
			switch {
			case v > prev:
				dir = model.TrendUp
			case v < prev:
				dir = model.TrendDown
			}
		}
		prev, havePrev = v, true
	}
	if dir == "" || !finite(prev) {
		return TrendReading{}, false
	}
	return TrendReading{Direction: dir, Value: prev}, true
}

// Oscillator runs MACD(fast, slow, signal) over the history closes. The
// position is bullish while the MACD line is above its signal line and
// bearish while it is below; a touch keeps the previous position.
func Oscillator(history []model.Candle, fast, slow, signal int) (OscillatorReading, bool) {
	macd := NewMACD(fast, slow, signal)
	var pos model.OscillatorPosition
	for i := range history {
		macd.Update(history[i].Close)
		if !macd.Ready() {
			continue
		}
		switch h := macd.Histogram(); {
		case h > 0:
			pos = model.OscillatorBullish
		case h < 0:
			pos = model.OscillatorBearish
		}
	}
	if pos == "" {
		return OscillatorReading{}, false
	}
	r := OscillatorReading{
		Line:      macd.Value(),
		Signal:    macd.Signal(),
		Histogram: macd.Histogram(),
		Position:  pos,
	}
	if !finite(r.Line) || !finite(r.Signal) {
		return OscillatorReading{}, false
	}
	return r, true
}

// Calculator is the default Source: Trend plus Oscillator.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a Calculator. Zero periods fall back to defaults.
func NewCalculator(cfg Config) *Calculator {
	def := DefaultConfig()
	if cfg.HMAPeriod <= 0 {
		cfg.HMAPeriod = def.HMAPeriod
	}
	if cfg.MACDFast <= 0 {
		cfg.MACDFast = def.MACDFast
	}
	if cfg.MACDSlow <= 0 {
		cfg.MACDSlow = def.MACDSlow
	}
	if cfg.MACDSignal <= 0 {
		cfg.MACDSignal = def.MACDSignal
	}
	return &Calculator{cfg: cfg}
}

// Snapshot implements Source.
func (c *Calculator) Snapshot(history []model.Candle) (model.IndicatorSnapshot, bool) {
	tr, ok := Trend(history, c.cfg.HMAPeriod)
	if !ok {
		return model.IndicatorSnapshot{}, false
	}
	osc, ok := Oscillator(history, c.cfg.MACDFast, c.cfg.MACDSlow, c.cfg.MACDSignal)
	if !ok {
		return model.IndicatorSnapshot{}, false
	}
	return model.IndicatorSnapshot{
		TrendDirection:      tr.Direction,
		TrendValue:          tr.Value,
		OscillatorPosition:  osc.Position,
		OscillatorLine:      osc.Line,
		OscillatorSignal:    osc.Signal,
		OscillatorHistogram: osc.Histogram,
	}, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
