package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Signals are sparse; keep a long tail per symbol.
	signalStreamMaxLen = 5000
	defaultLatestTTL   = 24 * time.Hour
	snapshotTTL        = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	EngineID string // scopes the snapshot key
}

// Writer publishes trade signals and engine checkpoints to Redis.
type Writer struct {
	client   *goredis.Client
	engineID string
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewFromClient(client, cfg.EngineID), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client, engineID string) *Writer {
	return &Writer{client: client, engineID: engineID}
}

// LatestSignalKey is the key holding the most recent signal of a symbol.
func LatestSignalKey(engineID, symbol string) string {
	return "signal:latest:" + engineID + ":" + symbol
}

// SnapshotKey is the key holding an engine's latest checkpoint.
func SnapshotKey(engineID string) string {
	return "signal:snapshot:" + engineID
}

// WriteSignal appends sig to its stream, updates the latest key and
// publishes it for live subscribers, in one pipeline.
func (w *Writer) WriteSignal(ctx context.Context, sig *model.TradeSignal) error {
	data := string(sig.Record())

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: sig.StreamKey(),
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":   sig.ID,
			"data": data,
		},
	})
	pipe.Set(ctx, LatestSignalKey(sig.EngineID, sig.Symbol), data, defaultLatestTTL)
	pipe.Publish(ctx, sig.PubSubChannel(), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis signal pipeline for %s: %w", sig.Symbol, err)
	}
	return nil
}

// PublishCandle appends a candle to its stream. Used by replay tooling to
// feed a live engine.
func (w *Writer) PublishCandle(ctx context.Context, c model.Candle) error {
	err := w.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: c.StreamKey(),
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{"data": string(c.JSON())},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", c.StreamKey(), err)
	}
	return nil
}

// SaveSnapshotJSON stores the engine checkpoint. SQLite keeps the durable
// history; Redis holds only the latest.
func (w *Writer) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	if err := w.client.Set(ctx, SnapshotKey(w.engineID), string(data), snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// ReadLatestSnapshotJSON returns nil, nil if no checkpoint exists.
func (w *Writer) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	data, err := w.client.Get(ctx, SnapshotKey(w.engineID)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	return data, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
