package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Direction is a directional bias.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
)

// Opposes reports whether d is the opposite bias of other.
func (d Direction) Opposes(other Direction) bool {
	return d != "" && other != "" && d != other
}

// Position is the engine's per-symbol belief about an open trade.
type Position string

const (
	PositionFlat    Position = "FLAT"
	PositionBullish Position = "BULLISH"
	PositionBearish Position = "BEARISH"
)

// PositionFor returns the open position for a direction.
func PositionFor(d Direction) Position {
	if d == Bullish {
		return PositionBullish
	}
	return PositionBearish
}

// Direction returns the bias of an open position, or "" when flat.
func (p Position) Direction() Direction {
	switch p {
	case PositionBullish:
		return Bullish
	case PositionBearish:
		return Bearish
	default:
		return ""
	}
}

// SignalType distinguishes opening from closing signals.
type SignalType string

const (
	SignalOpen  SignalType = "OPEN"
	SignalClose SignalType = "CLOSE"
)

// Trigger names what caused a signal to fire.
type Trigger string

const (
	TriggerTrend      Trigger = "trend"
	TriggerOscillator Trigger = "oscillator"
	TriggerConfluence Trigger = "confluence"
)

// TradeSignal is emitted once per firing transition and never mutated.
type TradeSignal struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Timeframe  string     `json:"timeframe"`
	TS         time.Time  `json:"ts"`
	SignalType SignalType `json:"signal_type"`
	Direction  Direction  `json:"direction"`
	EngineID   string     `json:"engine_id"`
	Trigger    Trigger    `json:"trigger"`
	ClosePrice float64    `json:"close_price"`

	TrendDirection      TrendDirection     `json:"trend_direction"`
	TrendValue          float64            `json:"trend_value"`
	OscillatorPosition  OscillatorPosition `json:"oscillator_position"`
	OscillatorLine      float64            `json:"oscillator_line"`
	OscillatorSignal    float64            `json:"oscillator_signal"`
	OscillatorHistogram float64            `json:"oscillator_histogram"`
}

// NewTradeSignal builds a signal from the triggering candle and snapshot.
func NewTradeSignal(engineID string, c Candle, snap IndicatorSnapshot, typ SignalType, dir Direction, trig Trigger) *TradeSignal {
	return &TradeSignal{
		ID:                  uuid.NewString(),
		Symbol:              c.Symbol,
		Timeframe:           c.Timeframe,
		TS:                  c.TS,
		SignalType:          typ,
		Direction:           dir,
		EngineID:            engineID,
		Trigger:             trig,
		ClosePrice:          c.Close,
		TrendDirection:      snap.TrendDirection,
		TrendValue:          snap.TrendValue,
		OscillatorPosition:  snap.OscillatorPosition,
		OscillatorLine:      snap.OscillatorLine,
		OscillatorSignal:    snap.OscillatorSignal,
		OscillatorHistogram: snap.OscillatorHistogram,
	}
}

// EventType implements Event.
func (s *TradeSignal) EventType() string { return EventTradeSignal }

// StreamKey returns the Redis stream key: "signal:{engine}:{symbol}".
func (s *TradeSignal) StreamKey() string {
	return "signal:" + s.EngineID + ":" + s.Symbol
}

// PubSubChannel returns the Redis PubSub channel for live subscribers.
func (s *TradeSignal) PubSubChannel() string {
	return "pub:signal:" + s.EngineID + ":" + s.Symbol
}

// JSON returns the JSON-encoded signal.
func (s *TradeSignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Record returns the signal payload tagged with its event type, the shape
// sinks persist verbatim.
func (s *TradeSignal) Record() []byte {
	type tagged struct {
		EventType string `json:"event_type"`
		*TradeSignal
	}
	b, _ := json.Marshal(tagged{EventType: EventTradeSignal, TradeSignal: s})
	return b
}
