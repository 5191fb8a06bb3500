package redis

import (
	"context"
	"log"
	"sync"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// BufferedWriter wraps a signal writer with a circuit breaker. While the
// circuit is open, signals are buffered locally and flushed when it
// closes again.
type BufferedWriter struct {
	writer model.SignalWriter
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []*model.TradeSignal
	maxBuf int // max buffered signals before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter around w. ctx bounds
// background flushes.
func NewBufferedWriter(ctx context.Context, w model.SignalWriter, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]*model.TradeSignal, 0, 64),
		maxBuf: maxBufferSize,
	}

	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.Flush()
		}
	}

	return bw
}

// WriteSignal writes through the circuit breaker. If the circuit is open
// the signal is buffered and nil is returned; other write errors are
// returned to the caller.
func (bw *BufferedWriter) WriteSignal(ctx context.Context, sig *model.TradeSignal) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteSignal(ctx, sig)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite(sig)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(sig *model.TradeSignal) {
	bw.mu.Lock()
	if len(bw.buffer) >= bw.maxBuf {
		log.Printf("[buffered-writer] buffer full, dropping signal %s", bw.buffer[0].ID)
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, sig)
	bw.mu.Unlock()

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// Flush replays buffered signals in order. On the first failure the
// unsent remainder goes back to the front of the buffer.
func (bw *BufferedWriter) Flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]*model.TradeSignal, 0, 64)
	bw.mu.Unlock()

	flushed := 0
	for i, sig := range toFlush {
		if err := bw.writer.WriteSignal(bw.ctx, sig); err != nil {
			log.Printf("[buffered-writer] flush stopped after %d: %v", flushed, err)
			bw.requeue(toFlush[i:])
			break
		}
		flushed++
	}

	if flushed > 0 {
		log.Printf("[buffered-writer] flushed %d buffered signals", flushed)
	}
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

func (bw *BufferedWriter) requeue(rest []*model.TradeSignal) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	merged := append(rest, bw.buffer...)
	if len(merged) > bw.maxBuf {
		merged = merged[len(merged)-bw.maxBuf:]
	}
	bw.buffer = merged
}

// PendingCount returns the number of buffered signals waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
