package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg := Load()
	assert.Equal(t, "confluence", cfg.EngineID)
	assert.Equal(t, SourceRedis, cfg.Source)
	assert.Equal(t, "5m", cfg.Timeframe)
	assert.Equal(t, "5m", cfg.BaseTimeframe)
	assert.False(t, cfg.Resample())
	assert.Equal(t, 500, cfg.HistorySize)
	assert.Equal(t, 20, cfg.Indicators.HMAPeriod)
	assert.Equal(t, 26, cfg.Indicators.MACDSlow)
	assert.Empty(t, cfg.Symbols)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SOURCE", "SQLite")
	t.Setenv("SYMBOLS", " AAPL, MSFT ,,TSLA")
	t.Setenv("TIMEFRAME", "15m")
	t.Setenv("BASE_TIMEFRAME", "1m")
	t.Setenv("HISTORY_SIZE", "250")
	t.Setenv("REPLAY_SPEED", "12.5")
	t.Setenv("SHARDS", "not-a-number")

	cfg := Load()
	assert.Equal(t, SourceSQLite, cfg.Source)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, cfg.Symbols)
	assert.True(t, cfg.Resample())
	assert.Equal(t, 250, cfg.HistorySize)
	assert.Equal(t, 12.5, cfg.ReplaySpeed)
	assert.Equal(t, 4, cfg.Shards, "invalid ints fall back to the default")
	require.NoError(t, cfg.Validate())
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ENGINE_ID=from-file\nCSV_PATH=/tmp/file.csv\n"), 0o644))
	t.Setenv("ENV_FILE", path)
	t.Setenv("ENGINE_ID", "from-env")
	require.NoError(t, os.Unsetenv("CSV_PATH"))
	t.Cleanup(func() { os.Unsetenv("CSV_PATH") })

	cfg := Load()
	assert.Equal(t, "from-env", cfg.EngineID)
	assert.Equal(t, "/tmp/file.csv", cfg.CSVPath)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Source:      SourceRedis,
			Symbols:     []string{"AAPL"},
			Timeframe:   "5m",
			HistorySize: 500,
			Shards:      4,
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"unknown source":    func(c *Config) { c.Source = "kafka" },
		"redis no symbols":  func(c *Config) { c.Symbols = nil },
		"csv no path":       func(c *Config) { c.Source = SourceCSV; c.CSVPath = "" },
		"no timeframe":      func(c *Config) { c.Timeframe = "" },
		"bad timeframe":     func(c *Config) { c.Timeframe = "5x" },
		"base not divisor":  func(c *Config) { c.BaseTimeframe = "2m" },
		"zero history":      func(c *Config) { c.HistorySize = 0 },
		"zero shards":       func(c *Config) { c.Shards = 0 },
		"half telegram cfg": func(c *Config) { c.TelegramBotToken = "t" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
