// cmd/backtest replays historical candles from SQLite or a CSV file through
// the signal engine and prints a per-symbol trade summary.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/signals.db --tf=5m
//	go run ./cmd/backtest --csv=data/aapl_1m.csv --base-tf=1m --tf=5m --out=signals.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/xmandeng/tastytrade-sdk-sub001/config"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/backtest"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/indicator"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/marketdata/csvfeed"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
	sqlitestore "github.com/xmandeng/tastytrade-sdk-sub001/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	config.LoadDotEnv(".env")

	def := indicator.DefaultConfig()
	dbPath := flag.String("db", "data/signals.db", "Path to SQLite database")
	csvPath := flag.String("csv", "", "Replay a CSV file instead of SQLite")
	tf := flag.String("tf", "5m", "Timeframe the engine evaluates")
	baseTF := flag.String("base-tf", "", "Timeframe of the stored candles (default: --tf)")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	symbols := flag.String("symbols", "", "Comma-separated symbols (default: all)")
	history := flag.Int("history", 500, "Candles of history per symbol")
	engineID := flag.String("engine", "backtest", "Engine ID stamped on signals")
	hma := flag.Int("hma", def.HMAPeriod, "HMA period")
	macdFast := flag.Int("macd-fast", def.MACDFast, "MACD fast period")
	macdSlow := flag.Int("macd-slow", def.MACDSlow, "MACD slow period")
	macdSignal := flag.Int("macd-signal", def.MACDSignal, "MACD signal period")
	outPath := flag.String("out", "", "Write all signals to this CSV file")
	flag.Parse()

	if *baseTF == "" {
		*baseTF = *tf
	}

	var reader model.CandleReader
	if *csvPath != "" {
		feed, err := csvfeed.Open(*csvPath, *baseTF)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		reader = feed
	} else {
		sqlReader, err := sqlitestore.NewReader(*dbPath)
		if err != nil {
			log.Fatalf("[backtest] sqlite open failed: %v", err)
		}
		defer sqlReader.Close()
		reader = sqlReader
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	rep, err := backtest.Run(ctx, backtest.Options{
		Reader:        reader,
		Symbols:       splitSymbols(*symbols),
		BaseTimeframe: *baseTF,
		Timeframe:     *tf,
		FromTS:        *fromTS,
		HistorySize:   *history,
		EngineID:      *engineID,
		Source: indicator.NewCalculator(indicator.Config{
			HMAPeriod:  *hma,
			MACDFast:   *macdFast,
			MACDSlow:   *macdSlow,
			MACDSignal: *macdSignal,
		}),
	})
	if err != nil {
		log.Printf("[backtest] stopped early: %v", err)
	}
	if rep == nil {
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Backtest %s on %s candles: %d processed, %d dropped, %d signals\n",
		*engineID, *tf, rep.Candles, rep.Dropped, len(rep.Signals))
	rep.RenderTable(os.Stdout)

	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("[backtest] create %s: %v", *outPath, err)
		}
		defer f.Close()
		if err := rep.WriteSignalsCSV(f); err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		log.Printf("[backtest] wrote %d signals to %s", len(rep.Signals), *outPath)
	}
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
