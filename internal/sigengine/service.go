// Package sigengine wires the signal engine into a running service: candle
// source, router, sinks, checkpoints and the HTTP surface.
package sigengine

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xmandeng/tastytrade-sdk-sub001/config"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/gateway"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/history"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/indicator"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/marketdata/bus"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/metrics"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/notification"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/router"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/signal"
	redisstore "github.com/xmandeng/tastytrade-sdk-sub001/internal/store/redis"
	sqlitestore "github.com/xmandeng/tastytrade-sdk-sub001/internal/store/sqlite"
)

// Option customizes a Service.
type Option func(*Service)

// WithRegisterer registers metrics on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.reg = reg }
}

// WithIndicatorSource replaces the HMA/MACD calculator.
func WithIndicatorSource(src indicator.Source) Option {
	return func(s *Service) { s.source = src }
}

// WithNotifier adds an alert backend next to the configured ones.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.extraNotifiers = append(s.extraNotifiers, n) }
}

// Service is the top-level orchestrator for the signal engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	reg            prometheus.Registerer
	source         indicator.Source
	extraNotifiers []notification.Notifier

	engine  *signal.Engine
	hist    *history.Store
	adapter *signal.Adapter
	router  *router.Router
	sharder *bus.Sharder
	hub     *gateway.Hub

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	server *metrics.Server

	sqlWriter   *sqlitestore.Writer
	sqlReader   *sqlitestore.Reader
	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	breaker     *redisstore.CircuitBreaker
	buffered    *redisstore.BufferedWriter

	snapshots []model.SnapshotStore
	recordCh  chan model.Candle

	// bgCtx outlives Run's ctx so shutdown can still flush background writers.
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// New connects to SQLite and, when configured, Redis, and builds the engine.
// Nothing runs until Run is called.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	svc := &Service{
		cfg: cfg,
		log: log,
		reg: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.source == nil {
		svc.source = indicator.NewCalculator(cfg.Indicators)
	}
	svc.bgCtx, svc.bgCancel = context.WithCancel(context.Background())
	svc.prom = metrics.New(svc.reg)
	svc.health = metrics.NewHealthStatus(cfg.EngineID, cfg.Source)

	if err := svc.openSQLite(); err != nil {
		return nil, err
	}
	if err := svc.openRedis(); err != nil {
		svc.closeStores()
		return nil, err
	}

	svc.engine = signal.NewEngine(cfg.EngineID, svc.source)
	svc.hist = history.NewStore(cfg.HistorySize)
	svc.router = router.New(router.DefaultMaxDepth)
	svc.hub = gateway.NewHub()
	if err := svc.buildPipeline(); err != nil {
		svc.closeStores()
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		svc.server = metrics.NewServer(cfg.MetricsAddr, svc.health)
		h := gateway.Handler(svc.hub, svc.engine)
		svc.server.Handle("/ws/", h)
		svc.server.Handle("/api/", h)
	}
	return svc, nil
}

func (svc *Service) openSQLite() error {
	path := svc.cfg.SQLitePath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	var err error
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:   path,
		EngineID: svc.cfg.EngineID,
		OnCommit: func(n int, d time.Duration) {
			svc.prom.SQLiteCommitDur.Observe(d.Seconds())
		},
	})
	if err != nil {
		return err
	}
	svc.sqlReader, err = sqlitestore.NewReader(path)
	if err != nil {
		svc.sqlWriter.Close()
		svc.sqlWriter = nil
		return err
	}
	svc.health.SetSQLiteOK(true)
	svc.snapshots = append(svc.snapshots, svc.sqlWriter)
	return nil
}

// openRedis connects the candle consumer (redis source only) and the signal
// publisher. Outside the redis source a publisher failure is not fatal.
func (svc *Service) openRedis() error {
	cfg := svc.cfg
	if cfg.Source == config.SourceRedis {
		var err error
		svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			ConsumerGroup: cfg.ConsumerGroup,
			ConsumerName:  cfg.ConsumerName,
		})
		if err != nil {
			return err
		}
		svc.redisWriter = redisstore.NewFromClient(svc.redisReader.Client(), cfg.EngineID)
	} else if cfg.PublishRedis {
		w, err := redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			EngineID: cfg.EngineID,
		})
		if err != nil {
			log.Printf("[sigengine] WARNING: redis unavailable: %v (continuing without redis)", err)
			return nil
		}
		svc.redisWriter = w
	}
	if svc.redisWriter == nil {
		return nil
	}

	svc.health.SetRedisEnabled(true)
	svc.health.SetRedisConnected(true)
	svc.breaker = redisstore.NewCircuitBreaker(5, 10*time.Second)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		log.Printf("[sigengine] redis circuit %s -> %s", from, to)
	}
	svc.snapshots = append(svc.snapshots, svc.redisWriter)
	return nil
}

// Engine returns the signal engine.
func (svc *Service) Engine() *signal.Engine { return svc.engine }

// Hub returns the live signal feed.
func (svc *Service) Hub() *gateway.Hub { return svc.hub }

// Run starts all subsystems and blocks until ctx is cancelled or a finite
// source (sqlite, csv) is exhausted.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	svc.log.Info("starting signal engine",
		"engine_id", cfg.EngineID,
		"source", cfg.Source,
		"timeframe", cfg.Timeframe,
		"symbols", cfg.Symbols,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc.restore(ctx)
	if cfg.Source == config.SourceRedis {
		svc.warmUp()
	}

	recordDone := make(chan struct{})
	if svc.recordCh != nil {
		go func() {
			defer close(recordDone)
			svc.sqlWriter.Run(svc.bgCtx, svc.recordCh)
		}()
	} else {
		close(recordDone)
	}

	if svc.server != nil {
		svc.server.Start()
	}
	svc.health.StartLivenessChecker(ctx, svc.redisClient(), svc.sqlWriter.DB(), 10*time.Second)
	go svc.snapshotLoop(ctx)
	go svc.saturationLoop(ctx)

	candles, err := svc.startSource(ctx)
	if err != nil {
		return err
	}
	svc.sharder.Run(ctx, candles)

	svc.shutdown(recordDone)
	return nil
}

// shutdown saves the final snapshot and closes connections.
func (svc *Service) shutdown(recordDone <-chan struct{}) {
	log.Println("[sigengine] shutting down, saving final snapshot...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()

	if svc.recordCh != nil {
		close(svc.recordCh)
		<-recordDone
	}
	svc.saveSnapshot(shutCtx)

	if svc.server != nil {
		svc.server.Stop(shutCtx)
	}
	svc.closeStores()
	log.Println("[sigengine] shutdown complete.")
}

func (svc *Service) closeStores() {
	if svc.bgCancel != nil {
		svc.bgCancel()
	}
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	// Reader and writer share one client on the redis source.
	if svc.redisReader != nil {
		svc.redisReader.Close()
	} else if svc.redisWriter != nil {
		svc.redisWriter.Close()
	}
}
