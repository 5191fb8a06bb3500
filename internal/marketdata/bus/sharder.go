// Package bus routes candles onto per-symbol shards so each symbol is
// processed by exactly one goroutine, in arrival order.
package bus

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/logger"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// Publisher is the router side of the bus.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Sharder hashes each candle's symbol onto one of N worker goroutines.
// A worker publishes its candles serially, so per-symbol processing is
// single-writer and ordered while different symbols run in parallel.
// Sends to a full shard block: candles are never dropped here.
type Sharder struct {
	pub     Publisher
	shards  []chan model.Candle
	bufSize int

	// OnError is called when a dispatch fails. The worker continues with
	// the next candle.
	OnError func(c model.Candle, err error)

	// OnDispatch observes the duration of every Publish call.
	OnDispatch func(d time.Duration)
}

// NewSharder creates a Sharder with n shards (minimum 1), each buffering
// bufSize candles.
func NewSharder(pub Publisher, n, bufSize int) *Sharder {
	if n <= 0 {
		n = 1
	}
	if bufSize < 0 {
		bufSize = 0
	}
	s := &Sharder{pub: pub, bufSize: bufSize, shards: make([]chan model.Candle, n)}
	for i := range s.shards {
		s.shards[i] = make(chan model.Candle, bufSize)
	}
	return s
}

// ShardFor returns the shard index of a symbol.
func (s *Sharder) ShardFor(symbol string) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(len(s.shards)))
}

// Run starts the workers and routes input until ctx is cancelled or input
// is closed. On close, queued candles are drained before Run returns.
func (s *Sharder) Run(ctx context.Context, input <-chan model.Candle) {
	var wg sync.WaitGroup
	for i, ch := range s.shards {
		wg.Add(1)
		go func(idx int, ch <-chan model.Candle) {
			defer wg.Done()
			s.work(ctx, idx, ch)
		}(i, ch)
	}

	defer func() {
		for _, ch := range s.shards {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-input:
			if !ok {
				return
			}
			select {
			case s.shards[s.ShardFor(c.Symbol)] <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Sharder) work(ctx context.Context, idx int, ch <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(ctx, idx, c)
		}
	}
}

func (s *Sharder) dispatch(ctx context.Context, idx int, c model.Candle) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(c.Symbol, c.TS))
	start := time.Now()
	err := s.pub.Publish(ctx, c)
	if s.OnDispatch != nil {
		s.OnDispatch(time.Since(start))
	}
	if err == nil {
		return
	}
	if s.OnError != nil {
		s.OnError(c, err)
		return
	}
	log.Printf("[bus] shard %d: %s at %s: %v", idx, c.Key(), c.TS.Format(time.RFC3339), err)
}

// ChannelStat is the fill level of one shard channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns (length, capacity) for each shard.
// Used for reporting shard saturation percentage.
func (s *Sharder) ChannelStats() []ChannelStat {
	stats := make([]ChannelStat, len(s.shards))
	for i, ch := range s.shards {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
