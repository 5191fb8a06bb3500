// Package replay emits stored candles at a configurable speed for backtests
// and for running the engine against recorded history.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// MaxGap caps the simulated wait between two consecutive candles.
const MaxGap = 5 * time.Second

// Replayer reads historical candles from a CandleReader (SQLite, CSV) and
// replays them in timestamp order.
type Replayer struct {
	reader  model.CandleReader
	symbols map[string]bool
}

// New creates a Replayer. When symbols is non-empty only those symbols are
// replayed.
func New(reader model.CandleReader, symbols []string) *Replayer {
	r := &Replayer{reader: reader}
	if len(symbols) > 0 {
		r.symbols = make(map[string]bool, len(symbols))
		for _, s := range symbols {
			r.symbols[s] = true
		}
	}
	return r
}

// Load returns the candles Run would emit, sorted by timestamp. Ties keep the
// reader's order.
func (r *Replayer) Load(timeframe string, fromTS int64) ([]model.Candle, error) {
	candles, err := r.reader.ReadAllCandles(timeframe, fromTS)
	if err != nil {
		return nil, err
	}
	if r.symbols != nil {
		kept := candles[:0]
		for _, c := range candles {
			if r.symbols[c.Symbol] {
				kept = append(kept, c)
			}
		}
		candles = kept
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].TS.Before(candles[j].TS)
	})
	return candles, nil
}

// Run replays all candles of one timeframe after fromTS into outCh.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
// Run does not close outCh.
func (r *Replayer) Run(ctx context.Context, timeframe string, fromTS int64, speed float64, outCh chan<- model.Candle) error {
	candles, err := r.Load(timeframe, fromTS)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		log.Printf("[replay] no %s candles found", timeframe)
		return nil
	}

	log.Printf("[replay] loaded %d %s candles, speed=%.1fx", len(candles), timeframe, speed)

	var prevTS time.Time
	emitted := 0

	for _, c := range candles {
		if speed > 0 && !prevTS.IsZero() {
			if gap := c.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > MaxGap {
					scaled = MaxGap
				}
				select {
				case <-ctx.Done():
					log.Printf("[replay] cancelled after %d candles", emitted)
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = c.TS

		select {
		case outCh <- c:
			emitted++
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", emitted)
			return ctx.Err()
		}
	}

	log.Printf("[replay] completed: %d candles replayed", emitted)
	return nil
}
