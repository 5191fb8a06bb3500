package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Candle represents one OHLC bar for a single instrument at one timeframe.
// Candles are immutable once delivered by the transport.
type Candle struct {
	Symbol    string    `json:"symbol" csv:"symbol"`
	Timeframe string    `json:"timeframe" csv:"timeframe"` // e.g. "1m", "5m", "1h"
	TS        time.Time `json:"ts" csv:"ts"`               // bucket start time (UTC)
	Open      float64   `json:"open" csv:"open"`
	High      float64   `json:"high" csv:"high"`
	Low       float64   `json:"low" csv:"low"`
	Close     float64   `json:"close" csv:"close"`
	Volume    float64   `json:"volume" csv:"volume"`
}

// EventType implements Event.
func (c Candle) EventType() string { return EventCandle }

// Key returns a unique key for this candle's series: "symbol:timeframe".
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.Timeframe
}

// StreamKey returns the Redis stream key: "candle:{timeframe}:{symbol}".
func (c *Candle) StreamKey() string {
	return "candle:" + c.Timeframe + ":" + c.Symbol
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// ParseTimeframe converts a timeframe label ("30s", "1m", "4h", "1d") into a
// bucket duration.
func ParseTimeframe(tf string) (time.Duration, error) {
	if n := len(tf); n > 1 && tf[n-1] == 'd' {
		days, err := strconv.Atoi(tf[:n-1])
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid timeframe %q", tf)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(tf)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	return d, nil
}
