// Package signal implements the confluence signal engine.
//
// The Engine keeps one SymbolState per instrument and runs a three-state
// machine (FLAT, BULLISH, BEARISH) on every candle. Opening a position needs
// both the trend and the oscillator indicator to flip to the same direction
// (confluence); closing it needs only one of them to flip against it.
//
// The Adapter plugs the Engine into the router as a candle processor.
package signal

import (
	"sort"
	"sync"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/indicator"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// DefaultEngineID identifies signals when no engine ID is configured.
const DefaultEngineID = "hma-macd-confluence"

// slot guards one symbol's state. One writer per symbol at a time.
type slot struct {
	mu    sync.Mutex
	state SymbolState
}

// Engine is the signal state machine. OnCandle may be called concurrently
// for different symbols; calls for the same symbol must arrive in
// timestamp order.
type Engine struct {
	id     string
	source indicator.Source

	mu    sync.RWMutex
	slots map[string]*slot
}

// NewEngine creates an engine that reads indicator snapshots from source.
func NewEngine(id string, source indicator.Source) *Engine {
	if id == "" {
		id = DefaultEngineID
	}
	return &Engine{
		id:     id,
		source: source,
		slots:  make(map[string]*slot, 64),
	}
}

// ID returns the engine identifier stamped on every signal.
func (e *Engine) ID() string { return e.id }

func (e *Engine) slot(symbol string) *slot {
	e.mu.RLock()
	s, ok := e.slots[symbol]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok = e.slots[symbol]; ok {
		return s
	}
	s = &slot{state: newSymbolState(symbol)}
	e.slots[symbol] = s
	return s
}

// OnCandle advances the state machine for candle's symbol. history is the
// symbol's window including candle, oldest first. It returns the signal
// fired by this step, or nil.
//
// OnCandle never fails: when the indicator source has no snapshot for the
// history the step only records the candle timestamp. A candle that does
// not advance the symbol's clock is ignored.
func (e *Engine) OnCandle(candle model.Candle, history []model.Candle) *model.TradeSignal {
	s := e.slot(candle.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.state
	if !st.LastTS.IsZero() && !candle.TS.After(st.LastTS) {
		return nil
	}
	st.LastTS = candle.TS

	snap, ok := e.source.Snapshot(history)
	if !ok {
		return nil
	}
	if !st.Seeded {
		st.observe(snap)
		return nil
	}

	sig := e.step(st, candle, snap)
	st.observe(snap)
	return sig
}

// Seed records indicator state for a warm-up candle without evaluating any
// transition. Warm-up never arms and never fires.
func (e *Engine) Seed(candle model.Candle, history []model.Candle) {
	s := e.slot(candle.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.LastTS.IsZero() && !candle.TS.After(s.state.LastTS) {
		return
	}
	s.state.LastTS = candle.TS
	if snap, ok := e.source.Snapshot(history); ok {
		s.state.observe(snap)
	}
}

func (e *Engine) step(st *SymbolState, c model.Candle, snap model.IndicatorSnapshot) *model.TradeSignal {
	trendChanged := snap.TrendDirection != st.TrendDirection
	oscChanged := snap.OscillatorPosition != st.OscillatorPosition

	if st.Position == model.PositionFlat {
		return e.seekOpen(st, c, snap, trendChanged, oscChanged)
	}
	return e.seekClose(st, c, snap, trendChanged, oscChanged)
}

func (e *Engine) seekOpen(st *SymbolState, c model.Candle, snap model.IndicatorSnapshot, trendChanged, oscChanged bool) *model.TradeSignal {
	if trendChanged {
		st.ArmedTrend = st.arm(model.TrendBias(snap.TrendDirection))
	}
	if oscChanged {
		st.ArmedOscillator = st.arm(model.OscillatorBias(snap.OscillatorPosition))
	}
	if st.ArmedTrend == nil || st.ArmedOscillator == nil {
		return nil
	}

	if st.ArmedTrend.Direction == st.ArmedOscillator.Direction {
		dir := st.ArmedTrend.Direction
		st.Position = model.PositionFor(dir)
		st.disarm()
		return model.NewTradeSignal(e.id, c, snap, model.SignalOpen, dir, model.TriggerConfluence)
	}

	// Conflict: keep the more recent arming. Trend wins when both were
	// armed by this candle.
	sameCandle := trendChanged && oscChanged
	if sameCandle || st.ArmedTrend.Seq > st.ArmedOscillator.Seq {
		st.ArmedOscillator = nil
	} else {
		st.ArmedTrend = nil
	}
	return nil
}

func (e *Engine) seekClose(st *SymbolState, c model.Candle, snap model.IndicatorSnapshot, trendChanged, oscChanged bool) *model.TradeSignal {
	held := st.Position.Direction()
	trendFlip := trendChanged && model.TrendBias(snap.TrendDirection).Opposes(held)
	oscFlip := oscChanged && model.OscillatorBias(snap.OscillatorPosition).Opposes(held)
	if !trendFlip && !oscFlip {
		return nil
	}

	trig := model.TriggerOscillator
	if trendFlip {
		trig = model.TriggerTrend
	}
	st.Position = model.PositionFlat
	st.disarm()
	return model.NewTradeSignal(e.id, c, snap, model.SignalClose, held, trig)
}

// LastTS returns the timestamp of the last candle the engine observed for
// symbol. ok is false when the symbol has no clock yet.
func (e *Engine) LastTS(symbol string) (last time.Time, ok bool) {
	e.mu.RLock()
	s, exists := e.slots[symbol]
	e.mu.RUnlock()
	if !exists {
		return time.Time{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastTS, !s.state.LastTS.IsZero()
}

// State returns a copy of one symbol's state.
func (e *Engine) State(symbol string) (SymbolState, bool) {
	e.mu.RLock()
	s, ok := e.slots[symbol]
	e.mu.RUnlock()
	if !ok {
		return SymbolState{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone(), true
}

// States returns copies of all symbol states sorted by symbol.
func (e *Engine) States() []SymbolState {
	e.mu.RLock()
	slots := make([]*slot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.mu.RUnlock()

	out := make([]SymbolState, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, s.state.clone())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
