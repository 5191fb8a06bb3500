// Package tfbuilder resamples a base candle series (e.g. 1m) into a larger
// timeframe (e.g. 5m). A target bucket is emitted once it is complete: either
// the last base candle of the bucket arrived, or a candle of a later bucket
// arrived first (gaps in the base series).
package tfbuilder

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// bucketState holds the forming target candle for one symbol.
type bucketState struct {
	start  time.Time
	end    time.Time
	candle model.Candle
}

// Builder resamples base candles into one target timeframe.
// Not goroutine-safe: run it from a single consumer goroutine.
type Builder struct {
	base   time.Duration
	target time.Duration
	tf     string

	states map[string]*bucketState

	// Metrics hooks
	OnTFCandle    func(c model.Candle) // called on every completed target candle (optional)
	OnStaleCandle func(c model.Candle) // called when a late base candle is rejected (optional)
}

// New creates a Builder resampling baseTF candles into targetTF candles.
// targetTF must be a whole multiple of baseTF.
func New(baseTF, targetTF string) (*Builder, error) {
	base, err := model.ParseTimeframe(baseTF)
	if err != nil {
		return nil, err
	}
	target, err := model.ParseTimeframe(targetTF)
	if err != nil {
		return nil, err
	}
	if target < base || target%base != 0 {
		return nil, fmt.Errorf("tfbuilder: %s is not a multiple of %s", targetTF, baseTF)
	}
	return &Builder{
		base:   base,
		target: target,
		tf:     targetTF,
		states: make(map[string]*bucketState, 64),
	}, nil
}

// Timeframe returns the target timeframe label.
func (b *Builder) Timeframe() string { return b.tf }

// Add merges one base candle and returns every target candle it completed, in
// time order. At most two candles are returned: the previous bucket (closed by
// a gap) and the current bucket (closed by its last base candle).
func (b *Builder) Add(c model.Candle) []model.Candle {
	start := c.TS.UTC().Truncate(b.target)
	st, exists := b.states[c.Symbol]

	if exists && start.Before(st.start) {
		if b.OnStaleCandle != nil {
			b.OnStaleCandle(c)
		}
		return nil
	}

	var out []model.Candle
	if exists && !start.Equal(st.start) {
		out = append(out, b.finalize(c.Symbol, st))
		exists = false
	}

	if !exists {
		st = &bucketState{
			start: start,
			end:   start.Add(b.target),
			candle: model.Candle{
				Symbol:    c.Symbol,
				Timeframe: b.tf,
				TS:        start,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			},
		}
		b.states[c.Symbol] = st
	} else {
		fc := &st.candle
		if c.High > fc.High {
			fc.High = c.High
		}
		if c.Low < fc.Low {
			fc.Low = c.Low
		}
		fc.Close = c.Close
		fc.Volume += c.Volume
	}

	if !c.TS.Add(b.base).Before(st.end) {
		out = append(out, b.finalize(c.Symbol, st))
	}
	return out
}

func (b *Builder) finalize(symbol string, st *bucketState) model.Candle {
	delete(b.states, symbol)
	if b.OnTFCandle != nil {
		b.OnTFCandle(st.candle)
	}
	return st.candle
}

// Flush returns every forming candle, ordered by time then symbol, and resets
// the builder. Used at the end of a finite replay.
func (b *Builder) Flush() []model.Candle {
	out := make([]model.Candle, 0, len(b.states))
	for sym, st := range b.states {
		out = append(out, st.candle)
		delete(b.states, sym)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TS.Equal(out[j].TS) {
			return out[i].TS.Before(out[j].TS)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Run consumes base candles from in and forwards completed target candles to
// out. When in closes the forming buckets are flushed and Run returns nil.
// Flushed buckets may be partial.
func (b *Builder) Run(ctx context.Context, in <-chan model.Candle, out chan<- model.Candle) error {
	send := func(cs []model.Candle) error {
		for _, c := range cs {
			select {
			case out <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				rest := b.Flush()
				log.Printf("[tfbuilder] input closed, flushed %d forming %s candles", len(rest), b.tf)
				return send(rest)
			}
			if err := send(b.Add(c)); err != nil {
				return err
			}
		}
	}
}
