package model

// TrendDirection is the state of the trend indicator.
type TrendDirection string

const (
	TrendUp   TrendDirection = "Up"
	TrendDown TrendDirection = "Down"
)

// OscillatorPosition is the cross state of the oscillator indicator.
type OscillatorPosition string

const (
	OscillatorBullish OscillatorPosition = "bullish"
	OscillatorBearish OscillatorPosition = "bearish"
)

// IndicatorSnapshot holds both indicator readings for one update.
// It is recomputed on every candle and never persisted on its own.
type IndicatorSnapshot struct {
	TrendDirection      TrendDirection     `json:"trend_direction"`
	TrendValue          float64            `json:"trend_value"`
	OscillatorPosition  OscillatorPosition `json:"oscillator_position"`
	OscillatorLine      float64            `json:"oscillator_line"`
	OscillatorSignal    float64            `json:"oscillator_signal"`
	OscillatorHistogram float64            `json:"oscillator_histogram"`
}

// TrendBias maps a trend direction to the directional bias it implies.
func TrendBias(d TrendDirection) Direction {
	if d == TrendUp {
		return Bullish
	}
	return Bearish
}

// OscillatorBias maps an oscillator position to the bias it implies.
func OscillatorBias(p OscillatorPosition) Direction {
	if p == OscillatorBullish {
		return Bullish
	}
	return Bearish
}
