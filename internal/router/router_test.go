package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// recorder logs every event it sees as "name:event_type".
type recorder struct {
	name  string
	match func(model.Event) bool
	log   *[]string
	err   error
}

func (r *recorder) Matches(ev model.Event) bool {
	if r.match == nil {
		return true
	}
	return r.match(ev)
}

func (r *recorder) ProcessEvent(ctx context.Context, ev model.Event) error {
	*r.log = append(*r.log, r.name+":"+ev.EventType())
	return r.err
}

func candle() model.Candle {
	return model.Candle{Symbol: "SPY", Timeframe: "1m", TS: time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), Close: 470}
}

func TestRouter_RegistrationOrder(t *testing.T) {
	var log []string
	r := New(0)
	r.Register(
		&recorder{name: "a", log: &log},
		&recorder{name: "b", log: &log, match: OfType(model.EventTradeSignal)},
		&recorder{name: "c", log: &log},
	)

	require.NoError(t, r.Publish(context.Background(), candle()))
	assert.Equal(t, []string{"a:candle", "c:candle"}, log)
	assert.Equal(t, 3, r.Len())
}

func TestRouter_ReinjectedSignalReachesEveryone(t *testing.T) {
	var log []string
	r := New(0)

	emitter := Func{
		MatchFn: OfType(model.EventCandle),
		ProcessFn: func(ctx context.Context, ev model.Event) error {
			log = append(log, "adapter:candle")
			return r.Emit(ctx, &model.TradeSignal{Symbol: "SPY"})
		},
	}
	r.Register(&recorder{name: "first", log: &log}, emitter, &recorder{name: "last", log: &log})

	require.NoError(t, r.Publish(context.Background(), candle()))

	// The signal is delivered after the candle has reached every processor,
	// and the adapter does not match it.
	assert.Equal(t, []string{
		"first:candle", "adapter:candle", "last:candle",
		"first:trade_signal", "last:trade_signal",
	}, log)
}

func TestRouter_ErrorStopsDispatch(t *testing.T) {
	var log []string
	boom := errors.New("disk full")
	r := New(0)
	r.Register(
		&recorder{name: "a", log: &log},
		&recorder{name: "bad", log: &log, err: boom},
		&recorder{name: "c", log: &log},
	)

	err := r.Publish(context.Background(), candle())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "candle")
	assert.Equal(t, []string{"a:candle", "bad:candle"}, log)
}

func TestRouter_FollowUpErrorReturnedToOuterPublish(t *testing.T) {
	boom := errors.New("signal sink failed")
	r := New(0)
	r.Register(
		Func{
			MatchFn: OfType(model.EventCandle),
			ProcessFn: func(ctx context.Context, ev model.Event) error {
				return r.Emit(ctx, &model.TradeSignal{Symbol: "SPY"})
			},
		},
		Func{
			MatchFn:   OfType(model.EventTradeSignal),
			ProcessFn: func(ctx context.Context, ev model.Event) error { return boom },
		},
	)

	assert.ErrorIs(t, r.Publish(context.Background(), candle()), boom)
}

func TestRouter_DepthLimit(t *testing.T) {
	var delivered int
	r := New(3)
	// Republishes everything it sees: unbounded without the guard.
	r.Register(Func{
		ProcessFn: func(ctx context.Context, ev model.Event) error {
			delivered++
			return r.Publish(ctx, ev)
		},
	})

	err := r.Publish(context.Background(), candle())
	assert.ErrorIs(t, err, ErrMaxDepth)
	assert.Equal(t, 4, delivered, "depths 0..3 delivered")
}

func TestRouter_LeakedContextStartsFreshDispatch(t *testing.T) {
	var leaked context.Context
	var seen int32
	r := New(0)
	r.Register(Func{
		ProcessFn: func(ctx context.Context, ev model.Event) error {
			atomic.AddInt32(&seen, 1)
			if leaked == nil {
				leaked = ctx
			}
			return nil
		},
	})

	require.NoError(t, r.Publish(context.Background(), candle()))
	require.NotNil(t, leaked)

	// Dispatch is over; publishing with its ctx must still deliver.
	require.NoError(t, r.Publish(leaked, candle()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&seen))
}

func TestRouter_ConcurrentPublish(t *testing.T) {
	var mu sync.Mutex
	perSymbol := make(map[string]int)

	r := New(0)
	r.Register(
		Func{
			MatchFn: OfType(model.EventCandle),
			ProcessFn: func(ctx context.Context, ev model.Event) error {
				c := ev.(model.Candle)
				return r.Emit(ctx, &model.TradeSignal{Symbol: c.Symbol})
			},
		},
		Func{
			MatchFn: OfType(model.EventTradeSignal),
			ProcessFn: func(ctx context.Context, ev model.Event) error {
				mu.Lock()
				perSymbol[ev.(*model.TradeSignal).Symbol]++
				mu.Unlock()
				return nil
			},
		},
	)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym := fmt.Sprintf("SYM%d", i)
			for n := 0; n < 100; n++ {
				c := candle()
				c.Symbol = sym
				if err := r.Publish(context.Background(), c); err != nil {
					t.Errorf("%s: %v", sym, err)
				}
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, perSymbol, 8)
	for sym, n := range perSymbol {
		assert.Equal(t, 100, n, sym)
	}
}

func TestRouter_NilEventIgnored(t *testing.T) {
	var log []string
	r := New(0)
	r.Register(&recorder{name: "a", log: &log})

	assert.NoError(t, r.Publish(context.Background(), nil))
	assert.Empty(t, log)
}
