package sigengine

import (
	"context"
	"log"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// restore loads the newest readable snapshot, SQLite first then Redis, and
// sets the open-position gauge from the restored states.
func (svc *Service) restore(ctx context.Context) {
	for _, store := range svc.snapshots {
		data, err := store.ReadLatestSnapshotJSON(ctx)
		if err != nil {
			log.Printf("[sigengine] snapshot read error: %v", err)
			continue
		}
		if data == nil {
			continue
		}
		if _, err := svc.engine.RestoreJSON(data); err != nil {
			log.Printf("[sigengine] snapshot restore error: %v", err)
			continue
		}
		break
	}

	open := 0
	for _, st := range svc.engine.States() {
		if st.Position != model.PositionFlat {
			open++
		}
	}
	svc.prom.OpenPositions.Set(float64(open))
}

// warmUp back-fills the history of every configured symbol from recorded
// candles so indicators are ready before the first live candle. Warm-up
// never fires signals; restored symbols catch up past their checkpoint.
func (svc *Service) warmUp() {
	cfg := svc.cfg
	total, caughtUp := 0, 0
	for _, sym := range cfg.Symbols {
		candles, err := svc.sqlReader.ReadCandles(sym, cfg.Timeframe, 0)
		if err != nil {
			log.Printf("[sigengine] warm-up read error for %s: %v", sym, err)
			continue
		}
		if len(candles) > cfg.HistorySize {
			candles = candles[len(candles)-cfg.HistorySize:]
		}
		caughtUp += svc.adapter.Warm(candles)
		total += len(candles)
	}
	if total > 0 {
		log.Printf("[sigengine] warmed up %d symbols with %d historical candles (%d signals already emitted before restart)", len(cfg.Symbols), total, caughtUp)
	}
}

// snapshotLoop periodically checkpoints engine state.
func (svc *Service) snapshotLoop(ctx context.Context) {
	interval := time.Duration(svc.cfg.SnapshotIntervalS) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.saveSnapshot(ctx)
		}
	}
}

// saveSnapshot writes one checkpoint to every snapshot store.
func (svc *Service) saveSnapshot(ctx context.Context) {
	data, err := svc.engine.SnapshotJSON()
	if err != nil {
		log.Printf("[sigengine] snapshot error: %v", err)
		return
	}
	saved := 0
	for _, store := range svc.snapshots {
		if err := store.SaveSnapshotJSON(ctx, data); err != nil {
			log.Printf("[sigengine] snapshot write error: %v", err)
			continue
		}
		saved++
	}
	if saved > 0 {
		svc.prom.SnapshotsSaved.Inc()
	}
	svc.health.SetSymbols(len(svc.engine.States()))
}
