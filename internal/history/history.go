// Package history keeps a bounded rolling window of candles per
// (symbol, timeframe) series.
package history

import (
	"errors"
	"sync"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/ringbuf"
)

// DefaultSize is the number of candles retained per series.
const DefaultSize = 500

// ErrOutOfOrder is returned when a candle does not advance its series' clock.
var ErrOutOfOrder = errors.New("history: candle timestamp not after last candle")

type series struct {
	mu     sync.Mutex
	window *ringbuf.Window
}

// Store owns one ringbuf.Window per series. Different series may be appended
// concurrently; a single series must have one writer at a time for ordering
// to be meaningful.
type Store struct {
	size int

	mu     sync.RWMutex
	series map[string]*series
}

// NewStore creates a store that keeps up to size candles per series.
func NewStore(size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	return &Store{
		size:   size,
		series: make(map[string]*series, 64),
	}
}

func (s *Store) get(key string) *series {
	s.mu.RLock()
	sr, ok := s.series[key]
	s.mu.RUnlock()
	if ok {
		return sr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok = s.series[key]; ok {
		return sr
	}
	sr = &series{window: ringbuf.New(s.size)}
	s.series[key] = sr
	return sr
}

// Append adds c to its series and returns the updated window, oldest first.
// Candles whose timestamp does not strictly increase are rejected with
// ErrOutOfOrder and leave the series untouched.
func (s *Store) Append(c model.Candle) ([]model.Candle, error) {
	sr := s.get(c.Key())

	sr.mu.Lock()
	defer sr.mu.Unlock()

	if last, ok := sr.window.Last(); ok && !c.TS.After(last.TS) {
		return nil, ErrOutOfOrder
	}
	sr.window.Push(c)
	return sr.window.Slice(), nil
}

// Window returns a copy of the series window for key ("symbol:timeframe").
func (s *Store) Window(key string) []model.Candle {
	s.mu.RLock()
	sr, ok := s.series[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.window.Slice()
}

// Len returns the number of tracked series.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}
