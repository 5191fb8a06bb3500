// Package ringbuf provides a fixed-capacity sliding window of model.Candle.
// Pushing into a full window overwrites the oldest candle, so memory and the
// cost of recomputing indicators over the window stay bounded.
package ringbuf

import "github.com/xmandeng/tastytrade-sdk-sub001/internal/model"

// Window is a circular buffer that keeps the most recent Cap() candles.
// It is not safe for concurrent use; callers serialize access per series.
type Window struct {
	buf   []model.Candle
	head  int // index of the oldest element
	count int

	// Eviction counter (for metrics)
	evicted uint64
}

// New creates a window holding up to capacity candles. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.Candle, capacity)}
}

// Push appends a candle, evicting the oldest one when the window is full.
// Returns true if an eviction happened.
func (w *Window) Push(c model.Candle) bool {
	n := len(w.buf)
	if w.count < n {
		w.buf[(w.head+w.count)%n] = c
		w.count++
		return false
	}

	w.buf[w.head] = c
	w.head = (w.head + 1) % n
	w.evicted++
	return true
}

// Slice returns a copy of the window contents, oldest first.
func (w *Window) Slice() []model.Candle {
	out := make([]model.Candle, w.count)
	n := len(w.buf)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%n]
	}
	return out
}

// Last returns the most recently pushed candle.
func (w *Window) Last() (model.Candle, bool) {
	if w.count == 0 {
		return model.Candle{}, false
	}
	return w.buf[(w.head+w.count-1)%len(w.buf)], true
}

// Len returns the current number of candles in the window.
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Evicted returns the total number of candles dropped off the old end.
func (w *Window) Evicted() uint64 { return w.evicted }
