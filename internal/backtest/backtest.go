// Package backtest runs stored candle history through the signal engine
// synchronously and summarizes the resulting trades.
package backtest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/history"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/indicator"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/marketdata/replay"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/marketdata/tfbuilder"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/router"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/signal"
)

// Options configures a backtest run.
type Options struct {
	Reader        model.CandleReader
	Symbols       []string // empty replays every symbol
	BaseTimeframe string   // timeframe stored in Reader
	Timeframe     string   // timeframe the engine evaluates
	FromTS        int64
	HistorySize   int
	EngineID      string
	Source        indicator.Source // nil uses the default calculator
}

// Trade is one OPEN matched with the CLOSE that ended it.
type Trade struct {
	Symbol       string
	Direction    model.Direction
	OpenTS       time.Time
	CloseTS      time.Time
	OpenPrice    float64
	ClosePrice   float64
	CloseTrigger model.Trigger
}

// Return is the trade's fractional return in its direction.
func (t Trade) Return() float64 {
	if t.OpenPrice == 0 {
		return 0
	}
	r := (t.ClosePrice - t.OpenPrice) / t.OpenPrice
	if t.Direction == model.Bearish {
		return -r
	}
	return r
}

// Report is the outcome of a run.
type Report struct {
	Candles int
	Dropped int
	Signals []*model.TradeSignal
	Trades  []Trade

	// Open holds positions still open when the history ended, by symbol.
	Open map[string]*model.TradeSignal
}

// Run replays the history and returns the report. Candles are published one
// at a time through a router, so the run is deterministic.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Reader == nil {
		return nil, fmt.Errorf("backtest: no candle reader")
	}
	if opts.Timeframe == "" {
		return nil, fmt.Errorf("backtest: no timeframe")
	}
	if opts.BaseTimeframe == "" {
		opts.BaseTimeframe = opts.Timeframe
	}
	if opts.Source == nil {
		opts.Source = indicator.NewCalculator(indicator.DefaultConfig())
	}

	candles, err := replay.New(opts.Reader, opts.Symbols).Load(opts.BaseTimeframe, opts.FromTS)
	if err != nil {
		return nil, err
	}
	if opts.BaseTimeframe != opts.Timeframe {
		candles, err = resample(candles, opts.BaseTimeframe, opts.Timeframe)
		if err != nil {
			return nil, err
		}
	}

	rep := &Report{Open: make(map[string]*model.TradeSignal)}
	engine := signal.NewEngine(opts.EngineID, opts.Source)
	rt := router.New(router.DefaultMaxDepth)
	adapter, err := signal.NewAdapter(engine, history.NewStore(opts.HistorySize), opts.Timeframe, rt.Emit)
	if err != nil {
		return nil, err
	}
	adapter.OnDrop = func(model.Candle) { rep.Dropped++ }

	rt.Register(adapter, router.Func{
		MatchFn: router.OfType(model.EventTradeSignal),
		ProcessFn: func(ctx context.Context, ev model.Event) error {
			rep.record(ev.(*model.TradeSignal))
			return nil
		},
	})

	for _, c := range candles {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := rt.Publish(ctx, c); err != nil {
			return rep, err
		}
		rep.Candles++
	}
	log.Printf("[backtest] %d candles, %d signals, %d trades", rep.Candles, len(rep.Signals), len(rep.Trades))
	return rep, nil
}

func resample(candles []model.Candle, base, target string) ([]model.Candle, error) {
	b, err := tfbuilder.New(base, target)
	if err != nil {
		return nil, err
	}
	out := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		out = append(out, b.Add(c)...)
	}
	// Symbols finish their buckets at different candles.
	out = append(out, b.Flush()...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

func (r *Report) record(sig *model.TradeSignal) {
	r.Signals = append(r.Signals, sig)
	switch sig.SignalType {
	case model.SignalOpen:
		r.Open[sig.Symbol] = sig
	case model.SignalClose:
		open, ok := r.Open[sig.Symbol]
		if !ok {
			return
		}
		delete(r.Open, sig.Symbol)
		r.Trades = append(r.Trades, Trade{
			Symbol:       sig.Symbol,
			Direction:    open.Direction,
			OpenTS:       open.TS,
			CloseTS:      sig.TS,
			OpenPrice:    open.ClosePrice,
			ClosePrice:   sig.ClosePrice,
			CloseTrigger: sig.Trigger,
		})
	}
}
