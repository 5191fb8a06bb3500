package model

// Event discriminators. These are also the storage routing tags.
const (
	EventCandle      = "candle"
	EventTradeSignal = "trade_signal"
)

// Event is anything that travels through the router.
type Event interface {
	// EventType returns the event family discriminator.
	EventType() string
}
