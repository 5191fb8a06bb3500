// Package indicator provides the technical indicators the signal engine
// consumes: a Hull moving average trend and a MACD oscillator.
//
// Streaming indicators implement the Indicator interface and are fed one
// close price at a time. Trend and Oscillator wrap them as pure functions of
// a candle history, which is how the engine uses them.
package indicator

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "WMA", "HMA").
	Name() string

	// Update feeds a new close price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
