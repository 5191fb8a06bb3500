package signal

import (
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// Armed records that an indicator changed and is waiting for the other
// indicator to agree. Seq orders armings within one symbol: the higher Seq
// was armed more recently. Armed values never expire.
type Armed struct {
	Direction model.Direction `json:"direction"`
	Seq       uint64          `json:"seq"`
}

// SymbolState is the per-instrument state of the engine. It is created on
// the first candle observed for a symbol and lives for the process lifetime.
type SymbolState struct {
	Symbol   string         `json:"symbol"`
	Position model.Position `json:"position"`

	// Last observed indicator states, used for edge detection.
	TrendDirection     model.TrendDirection     `json:"trend_direction,omitempty"`
	OscillatorPosition model.OscillatorPosition `json:"oscillator_position,omitempty"`
	Seeded             bool                     `json:"seeded"`

	ArmedTrend      *Armed `json:"armed_trend,omitempty"`
	ArmedOscillator *Armed `json:"armed_oscillator,omitempty"`
	ArmSeq          uint64 `json:"arm_seq"`

	LastTS time.Time `json:"last_ts"`
}

func newSymbolState(symbol string) SymbolState {
	return SymbolState{Symbol: symbol, Position: model.PositionFlat}
}

func (s *SymbolState) arm(dir model.Direction) *Armed {
	s.ArmSeq++
	return &Armed{Direction: dir, Seq: s.ArmSeq}
}

// disarm clears both armed fields. They are always cleared together.
func (s *SymbolState) disarm() {
	s.ArmedTrend = nil
	s.ArmedOscillator = nil
}

func (s *SymbolState) observe(snap model.IndicatorSnapshot) {
	s.TrendDirection = snap.TrendDirection
	s.OscillatorPosition = snap.OscillatorPosition
	s.Seeded = true
}

// clone returns a deep copy safe to hand outside the engine.
func (s SymbolState) clone() SymbolState {
	if s.ArmedTrend != nil {
		a := *s.ArmedTrend
		s.ArmedTrend = &a
	}
	if s.ArmedOscillator != nil {
		a := *s.ArmedOscillator
		s.ArmedOscillator = &a
	}
	return s
}
