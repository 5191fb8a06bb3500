package signal

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/history"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// ErrNoTimeframe is returned by NewAdapter without a timeframe.
var ErrNoTimeframe = errors.New("signal: adapter needs a timeframe")

// EmitFunc hands a fired signal back to the broadcast path.
type EmitFunc func(ctx context.Context, sig *model.TradeSignal) error

// Adapter is the router processor that feeds candles to the Engine.
// It owns ordering: candles that do not advance the symbol's engine clock
// (including a clock restored from a snapshot) are dropped here and never
// reach the Engine.
type Adapter struct {
	engine    *Engine
	history   *history.Store
	emit      EmitFunc
	timeframe string

	// OnDrop is called for every out-of-order or duplicate candle.
	OnDrop func(c model.Candle)
}

// NewAdapter creates an Adapter for one candle timeframe. Engine state is
// keyed by symbol, so each engine is fed a single timeframe.
func NewAdapter(engine *Engine, hist *history.Store, timeframe string, emit EmitFunc) (*Adapter, error) {
	if timeframe == "" {
		return nil, ErrNoTimeframe
	}
	return &Adapter{
		engine:    engine,
		history:   hist,
		emit:      emit,
		timeframe: timeframe,
	}, nil
}

// Matches accepts candle events of the configured timeframe.
func (a *Adapter) Matches(ev model.Event) bool {
	c, ok := candleOf(ev)
	return ok && c.Timeframe == a.timeframe
}

// ProcessEvent runs one candle through the engine and emits any signal.
func (a *Adapter) ProcessEvent(ctx context.Context, ev model.Event) error {
	c, ok := candleOf(ev)
	if !ok {
		return nil
	}

	if last, ok := a.engine.LastTS(c.Symbol); ok && !c.TS.After(last) {
		// Candles behind a restored clock still fill the window so the
		// indicators are ready once the stream passes it.
		a.history.Append(c)
		a.drop(c)
		return nil
	}

	win, err := a.history.Append(c)
	if err != nil {
		if errors.Is(err, history.ErrOutOfOrder) {
			a.drop(c)
			return nil
		}
		return err
	}

	sig := a.engine.OnCandle(c, win)
	if sig == nil || a.emit == nil {
		return nil
	}
	return a.emit(ctx, sig)
}

// Warm back-fills history from recorded candles, oldest first, without
// emitting. Candles at or before a symbol's engine clock only fill history.
// For a symbol restored from a snapshot, later candles run through the
// normal step so the state catches up with what was processed before the
// restart; their signals were already emitted then and are discarded.
// Symbols without state are seeded and never arm. Warm returns the number
// of discarded signals.
func (a *Adapter) Warm(candles []model.Candle) int {
	restored := make(map[string]bool)
	discarded := 0
	for _, c := range candles {
		if c.Timeframe != a.timeframe {
			continue
		}
		isRestored, seen := restored[c.Symbol]
		if !seen {
			st, ok := a.engine.State(c.Symbol)
			isRestored = ok && st.Seeded
			restored[c.Symbol] = isRestored
		}

		last, hasClock := a.engine.LastTS(c.Symbol)
		if hasClock && !c.TS.After(last) {
			a.history.Append(c)
			continue
		}
		win, err := a.history.Append(c)
		if err != nil {
			continue
		}
		if !isRestored {
			a.engine.Seed(c, win)
			continue
		}
		if sig := a.engine.OnCandle(c, win); sig != nil {
			discarded++
			log.Printf("[signal] catch-up %s %s %s at %s not re-emitted", sig.SignalType, sig.Direction, c.Key(), c.TS.Format(time.RFC3339))
		}
	}
	return discarded
}

func (a *Adapter) drop(c model.Candle) {
	if a.OnDrop != nil {
		a.OnDrop(c)
		return
	}
	log.Printf("[signal] dropping out-of-order candle %s at %s", c.Key(), c.TS)
}

func candleOf(ev model.Event) (model.Candle, bool) {
	switch c := ev.(type) {
	case model.Candle:
		return c, true
	case *model.Candle:
		if c == nil {
			return model.Candle{}, false
		}
		return *c, true
	default:
		return model.Candle{}, false
	}
}
