package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the signal pipeline from concrete storage
// implementations (Redis, SQLite).

// SignalWriter persists trade signals.
type SignalWriter interface {
	WriteSignal(ctx context.Context, sig *TradeSignal) error
}

// CandleReader reads stored candles for warm-up and replay.
type CandleReader interface {
	// ReadCandles reads candles for one series after afterTS (unix seconds),
	// ordered by timestamp ascending.
	ReadCandles(symbol, timeframe string, afterTS int64) ([]Candle, error)

	// ReadAllCandles reads candles of one timeframe across all symbols.
	ReadAllCandles(timeframe string, afterTS int64) ([]Candle, error)
}

// SnapshotStore reads and writes engine state checkpoints as raw JSON.
// Using []byte avoids a model→signal import cycle.
type SnapshotStore interface {
	SaveSnapshotJSON(ctx context.Context, data []byte) error

	// ReadLatestSnapshotJSON returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error)
}
