package backtest

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
)

// SymbolSummary aggregates the trades of one symbol.
type SymbolSummary struct {
	Symbol       string
	Signals      int
	Trades       int
	Wins         int
	MeanReturn   float64
	MedianReturn float64
	TotalReturn  float64
	Open         bool // a position is still open
}

// WinRate returns the fraction of trades with a positive return.
func (s SymbolSummary) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// Summaries returns one summary per symbol, sorted by symbol.
func (r *Report) Summaries() []SymbolSummary {
	bySym := make(map[string]*SymbolSummary)
	returns := make(map[string][]float64)
	get := func(sym string) *SymbolSummary {
		s, ok := bySym[sym]
		if !ok {
			s = &SymbolSummary{Symbol: sym}
			bySym[sym] = s
		}
		return s
	}

	for _, sig := range r.Signals {
		get(sig.Symbol).Signals++
	}
	for _, t := range r.Trades {
		s := get(t.Symbol)
		s.Trades++
		ret := t.Return()
		if ret > 0 {
			s.Wins++
		}
		s.TotalReturn += ret
		returns[t.Symbol] = append(returns[t.Symbol], ret)
	}
	for sym := range r.Open {
		get(sym).Open = true
	}

	out := make([]SymbolSummary, 0, len(bySym))
	for sym, s := range bySym {
		if rs := returns[sym]; len(rs) > 0 {
			s.MeanReturn, _ = stats.Mean(rs)
			s.MedianReturn, _ = stats.Median(rs)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// RenderTable writes the per-symbol summary as a text table.
func (r *Report) RenderTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Symbol", "Signals", "Trades", "Win rate", "Mean", "Median", "Total", "Open"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	var signals, trades int
	for _, s := range r.Summaries() {
		signals += s.Signals
		trades += s.Trades
		open := ""
		if s.Open {
			open = "yes"
		}
		table.Append([]string{
			s.Symbol,
			fmt.Sprintf("%d", s.Signals),
			fmt.Sprintf("%d", s.Trades),
			pct(s.WinRate()),
			pct(s.MeanReturn),
			pct(s.MedianReturn),
			pct(s.TotalReturn),
			open,
		})
	}
	table.SetFooter([]string{"", fmt.Sprintf("%d", signals), fmt.Sprintf("%d", trades), "", "", "", "", fmt.Sprintf("%d", len(r.Open))})
	table.Render()
}

func pct(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

type signalRow struct {
	ID         string  `csv:"id"`
	Symbol     string  `csv:"symbol"`
	Timeframe  string  `csv:"timeframe"`
	TS         string  `csv:"ts"`
	Type       string  `csv:"signal_type"`
	Direction  string  `csv:"direction"`
	Trigger    string  `csv:"trigger"`
	ClosePrice float64 `csv:"close_price"`
	Trend      string  `csv:"trend"`
	TrendValue float64 `csv:"trend_value"`
	Oscillator string  `csv:"oscillator"`
	Histogram  float64 `csv:"histogram"`
}

// WriteSignalsCSV exports every signal of the run.
func (r *Report) WriteSignalsCSV(w io.Writer) error {
	rows := make([]signalRow, len(r.Signals))
	for i, s := range r.Signals {
		rows[i] = signalRow{
			ID:         s.ID,
			Symbol:     s.Symbol,
			Timeframe:  s.Timeframe,
			TS:         s.TS.UTC().Format(time.RFC3339),
			Type:       string(s.SignalType),
			Direction:  string(s.Direction),
			Trigger:    string(s.Trigger),
			ClosePrice: s.ClosePrice,
			Trend:      string(s.TrendDirection),
			TrendValue: s.TrendValue,
			Oscillator: string(s.OscillatorPosition),
			Histogram:  s.OscillatorHistogram,
		}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("backtest: export signals: %w", err)
	}
	return nil
}
