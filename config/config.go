package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/indicator"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// Candle sources.
const (
	SourceRedis  = "redis"
	SourceSQLite = "sqlite"
	SourceCSV    = "csv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	EngineID string
	LogLevel string

	// Candle input
	Source        string // redis | sqlite | csv
	Symbols       []string
	Timeframe     string // timeframe the engine evaluates
	BaseTimeframe string // timeframe of the source; resampled when it differs
	CSVPath       string
	ReplaySpeed   float64
	ReplayFromTS  int64

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PublishRedis  bool // publish signals to redis; implied by the redis source
	ConsumerGroup string
	ConsumerName  string
	SQLitePath    string
	MetricsAddr   string

	// Engine
	HistorySize       int
	Shards            int
	ShardBuffer       int
	SnapshotIntervalS int
	Indicators        indicator.Config

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads an optional .env file and then configuration from environment
// variables with sensible defaults. Variables already set in the environment
// win over the .env file.
func Load() *Config {
	LoadDotEnv(getEnv("ENV_FILE", ".env"))

	tf := getEnv("TIMEFRAME", "5m")
	return &Config{
		EngineID: getEnv("ENGINE_ID", "confluence"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Source:        strings.ToLower(getEnv("SOURCE", SourceRedis)),
		Symbols:       splitList(getEnv("SYMBOLS", "")),
		Timeframe:     tf,
		BaseTimeframe: getEnv("BASE_TIMEFRAME", tf),
		CSVPath:       getEnv("CSV_PATH", "data/candles.csv"),
		ReplaySpeed:   getEnvFloat("REPLAY_SPEED", 0),
		ReplayFromTS:  int64(getEnvInt("REPLAY_FROM_TS", 0)),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PublishRedis:  getEnvBool("PUBLISH_REDIS", true),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "signalengine"),
		ConsumerName:  getEnv("CONSUMER_NAME", "worker-1"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		HistorySize:       getEnvInt("HISTORY_SIZE", 500),
		Shards:            getEnvInt("SHARDS", 4),
		ShardBuffer:       getEnvInt("SHARD_BUFFER", 1024),
		SnapshotIntervalS: getEnvInt("SNAPSHOT_INTERVAL_SEC", 30),
		Indicators: indicator.Config{
			HMAPeriod:  getEnvInt("HMA_PERIOD", 20),
			MACDFast:   getEnvInt("MACD_FAST", 12),
			MACDSlow:   getEnvInt("MACD_SLOW", 26),
			MACDSignal: getEnvInt("MACD_SIGNAL", 9),
		},

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// LoadDotEnv loads path into the environment. A missing file is not an error.
func LoadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] failed to load %s: %v", path, err)
	}
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceRedis:
		if len(c.Symbols) == 0 {
			return errors.New("config: SYMBOLS is required for the redis source")
		}
	case SourceSQLite:
	case SourceCSV:
		if c.CSVPath == "" {
			return errors.New("config: CSV_PATH is required for the csv source")
		}
	default:
		return fmt.Errorf("config: unknown SOURCE %q", c.Source)
	}
	if c.Timeframe == "" {
		return errors.New("config: TIMEFRAME is required")
	}
	target, err := model.ParseTimeframe(c.Timeframe)
	if err != nil {
		return fmt.Errorf("config: TIMEFRAME: %w", err)
	}
	if c.Resample() {
		base, err := model.ParseTimeframe(c.BaseTimeframe)
		if err != nil {
			return fmt.Errorf("config: BASE_TIMEFRAME: %w", err)
		}
		if target%base != 0 {
			return fmt.Errorf("config: TIMEFRAME %s is not a multiple of BASE_TIMEFRAME %s", c.Timeframe, c.BaseTimeframe)
		}
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("config: HISTORY_SIZE must be positive, got %d", c.HistorySize)
	}
	if c.Shards <= 0 {
		return fmt.Errorf("config: SHARDS must be positive, got %d", c.Shards)
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return errors.New("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

// Resample reports whether source candles must be resampled into Timeframe.
func (c *Config) Resample() bool {
	return c.BaseTimeframe != "" && c.BaseTimeframe != c.Timeframe
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}
