package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	snapshotsKept     = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath   string // path to SQLite database file, e.g. "data/signals.db"
	EngineID string // scopes engine_snapshots rows

	// OnCommit, if set, observes every committed candle batch.
	OnCommit func(n int, d time.Duration)
}

// Writer persists candles, trade signals and engine checkpoints.
// Candles arrive through Run and are committed in batches; signals are
// written synchronously so the router sees storage failures.
type Writer struct {
	db       *sql.DB
	engineID string
	onCommit func(n int, d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a Writer and initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, engineID: cfg.EngineID, onCommit: cfg.OnCommit}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL,
			PRIMARY KEY (symbol, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS trade_signals (
			id          TEXT    PRIMARY KEY,
			event_type  TEXT    NOT NULL,
			engine_id   TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			timeframe   TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			signal_type TEXT    NOT NULL,
			direction   TEXT    NOT NULL,
			trigger_by  TEXT    NOT NULL,
			close_price REAL    NOT NULL,
			payload     TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trade_signals_symbol_ts ON trade_signals (symbol, ts);

		CREATE TABLE IF NOT EXISTS engine_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			engine_id  TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// Run reads candles from candleCh and inserts them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.InsertCandles(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if w.onCommit != nil {
			w.onCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case candle, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, candle)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertCandles writes candles in a single transaction. Re-inserting a
// candle replaces it.
func (w *Writer) InsertCandles(candles []model.Candle) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, c.Timeframe, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// WriteSignal stores a trade signal. The signal ID is the primary key, so
// a redelivered signal is ignored.
func (w *Writer) WriteSignal(ctx context.Context, sig *model.TradeSignal) error {
	payload := sig.Record()
	_, err := w.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trade_signals
			(id, event_type, engine_id, symbol, timeframe, ts, signal_type, direction, trigger_by, close_price, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.ID, sig.EventType(), sig.EngineID, sig.Symbol, sig.Timeframe, sig.TS.Unix(),
		string(sig.SignalType), string(sig.Direction), string(sig.Trigger), sig.ClosePrice, string(payload))
	if err != nil {
		return fmt.Errorf("sqlite insert signal: %w", err)
	}
	return nil
}

// GetLastTimestamp returns the last stored candle timestamp for a series.
// Returns 0 if no candles exist.
func (w *Writer) GetLastTimestamp(symbol, timeframe string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND timeframe = ?`,
		symbol, timeframe,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// SaveSnapshotJSON stores an engine checkpoint and prunes all but the most
// recent few for this engine.
func (w *Writer) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO engine_snapshots (engine_id, data, created_at) VALUES (?, ?, ?)`,
		w.engineID, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.ExecContext(ctx, `
		DELETE FROM engine_snapshots
		WHERE engine_id = ? AND id NOT IN (
			SELECT id FROM engine_snapshots WHERE engine_id = ? ORDER BY id DESC LIMIT ?
		)`, w.engineID, w.engineID, snapshotsKept)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}

	return nil
}

// ReadLatestSnapshotJSON returns the most recent checkpoint for this
// engine, or nil, nil if there is none.
func (w *Writer) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	var data string
	err := w.db.QueryRowContext(ctx, `
		SELECT data FROM engine_snapshots
		WHERE engine_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, w.engineID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
