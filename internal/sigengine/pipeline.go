package sigengine

import (
	"context"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/xmandeng/tastytrade-sdk-sub001/config"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/marketdata/bus"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/notification"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/router"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/signal"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/sink"
	redisstore "github.com/xmandeng/tastytrade-sdk-sub001/internal/store/redis"
)

const recordBuffer = 4096

// buildPipeline registers every processor on the router. Candle processors
// run first; signals emitted by the adapter are queued behind the candle and
// reach the signal sinks in registration order. Redis goes last so an
// outage cannot hide a signal from the other sinks.
func (svc *Service) buildPipeline() error {
	cfg := svc.cfg

	adapter, err := signal.NewAdapter(svc.engine, svc.hist, cfg.Timeframe, svc.router.Emit)
	if err != nil {
		return err
	}
	svc.adapter = adapter
	svc.adapter.OnDrop = func(c model.Candle) {
		svc.prom.CandlesDropped.Inc()
		log.Printf("[sigengine] dropped out-of-order candle %s at %s", c.Key(), c.TS.Format(time.RFC3339))
	}

	svc.router.Register(
		sink.NewMetricsSink(svc.prom),
		router.Func{
			MatchFn: router.OfType(model.EventCandle),
			ProcessFn: func(ctx context.Context, ev model.Event) error {
				if c, ok := ev.(model.Candle); ok {
					svc.health.SetLastCandleTime(c.TS)
				}
				return nil
			},
		},
		svc.adapter,
	)

	// Replaying SQLite would only write the same candles back.
	if cfg.Source != config.SourceSQLite {
		svc.recordCh = make(chan model.Candle, recordBuffer)
		rec := sink.NewCandleRecorder(svc.recordCh, cfg.Timeframe)
		rec.OnDrop = svc.prom.CandlesDropped.Inc
		svc.router.Register(rec)
	}

	svc.router.Register(
		sink.NewStoreSink("sqlite", svc.sqlWriter),
		svc.hub,
		sink.NewLogSink(svc.log),
		sink.NewAlertSink(svc.notifier(), 0),
	)
	svc.hub.OnClientCount = func(n int) { svc.prom.WSClients.Set(float64(n)) }

	if svc.redisWriter != nil {
		svc.buffered = redisstore.NewBufferedWriter(svc.bgCtx, svc.redisWriter, svc.breaker, 0)
		svc.buffered.OnBuffer = svc.prom.RedisBufferedWrites.Inc
		svc.router.Register(sink.NewStoreSink("redis", svc.buffered))
	}

	svc.sharder = bus.NewSharder(svc.router, cfg.Shards, cfg.ShardBuffer)
	svc.sharder.OnDispatch = func(d time.Duration) { svc.prom.ProcessDur.Observe(d.Seconds()) }
	svc.sharder.OnError = func(c model.Candle, err error) {
		svc.prom.RouterErrors.WithLabelValues(model.EventCandle).Inc()
		svc.log.Error("candle dispatch failed", "symbol", c.Symbol, "ts", c.TS, "error", err)
	}

	log.Printf("[sigengine] pipeline ready: %d processors, %d shards", svc.router.Len(), cfg.Shards)
	return nil
}

// notifier combines the log notifier with the webhook and Telegram backends
// that are configured.
func (svc *Service) notifier() notification.Notifier {
	cfg := svc.cfg
	backends := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		tg, err := notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("[sigengine] WARNING: telegram disabled: %v", err)
		} else {
			backends = append(backends, tg)
		}
	}
	backends = append(backends, svc.extraNotifiers...)
	return backends
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.redisWriter == nil {
		return nil
	}
	return svc.redisWriter.Client()
}

// saturationLoop reports shard channel fill levels.
func (svc *Service) saturationLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i, st := range svc.sharder.ChannelStats() {
				if st.Cap == 0 {
					continue
				}
				pct := float64(st.Len) / float64(st.Cap) * 100
				svc.prom.ShardSaturationPct.WithLabelValues(strconv.Itoa(i)).Set(pct)
			}
		}
	}
}
