package sigengine

import (
	"context"
	"fmt"
	"log"

	"github.com/xmandeng/tastytrade-sdk-sub001/config"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/marketdata/csvfeed"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/marketdata/replay"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/marketdata/tfbuilder"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
	redisstore "github.com/xmandeng/tastytrade-sdk-sub001/internal/store/redis"
)

const sourceBuffer = 5000

// startSource starts the configured candle source and returns the channel
// the sharder consumes. Finite sources close the channel when exhausted.
// When BASE_TIMEFRAME differs from TIMEFRAME the source candles pass
// through a resampler first.
func (svc *Service) startSource(ctx context.Context) (<-chan model.Candle, error) {
	cfg := svc.cfg
	raw := make(chan model.Candle, sourceBuffer)

	switch cfg.Source {
	case config.SourceRedis:
		if err := svc.startRedisConsumer(ctx, raw); err != nil {
			return nil, err
		}
	case config.SourceSQLite:
		svc.startReplay(ctx, svc.sqlReader, raw)
	case config.SourceCSV:
		feed, err := csvfeed.Open(cfg.CSVPath, cfg.BaseTimeframe)
		if err != nil {
			return nil, err
		}
		log.Printf("[sigengine] loaded %d candles from %s", feed.Len(), cfg.CSVPath)
		svc.startReplay(ctx, feed, raw)
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}

	if !cfg.Resample() {
		return raw, nil
	}

	b, err := tfbuilder.New(cfg.BaseTimeframe, cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	b.OnStaleCandle = func(model.Candle) { svc.prom.CandlesDropped.Inc() }
	out := make(chan model.Candle, sourceBuffer)
	go func() {
		defer close(out)
		if err := b.Run(ctx, raw, out); err != nil && ctx.Err() == nil {
			log.Printf("[sigengine] resampler stopped: %v", err)
		}
	}()
	log.Printf("[sigengine] resampling %s candles into %s", cfg.BaseTimeframe, cfg.Timeframe)
	return out, nil
}

// startRedisConsumer recovers this consumer's pending messages and then
// consumes live candles. The channel is never closed; the consumer stops
// with ctx.
func (svc *Service) startRedisConsumer(ctx context.Context, out chan<- model.Candle) error {
	streams := redisstore.CandleStreams(svc.cfg.Symbols, svc.cfg.BaseTimeframe)
	if err := svc.redisReader.EnsureConsumerGroup(ctx, streams); err != nil {
		return fmt.Errorf("consumer group setup: %w", err)
	}
	svc.health.SetFeedConnected(true)
	svc.health.SetSymbols(len(svc.cfg.Symbols))
	log.Printf("[sigengine] consuming from %d streams: %v", len(streams), streams)

	go func() {
		if err := svc.redisReader.RecoverPending(ctx, streams, out); err != nil {
			log.Printf("[sigengine] pending recovery error: %v", err)
		}
		if err := svc.redisReader.ConsumeCandles(ctx, streams, out); err != nil && ctx.Err() == nil {
			log.Printf("[sigengine] consumer error: %v", err)
		}
		svc.health.SetFeedConnected(false)
	}()
	return nil
}

// startReplay replays stored candles and closes out when done.
func (svc *Service) startReplay(ctx context.Context, reader model.CandleReader, out chan<- model.Candle) {
	cfg := svc.cfg
	r := replay.New(reader, cfg.Symbols)
	svc.health.SetFeedConnected(true)
	go func() {
		defer close(out)
		defer svc.health.SetFeedConnected(false)
		if err := r.Run(ctx, cfg.BaseTimeframe, cfg.ReplayFromTS, cfg.ReplaySpeed, out); err != nil && ctx.Err() == nil {
			log.Printf("[sigengine] replay error: %v", err)
		}
	}()
}
