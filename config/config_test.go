package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Signal.GeminiKey = "test-key"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "EUR_USD", cfg.Pair)
	assert.Equal(t, "Asia/Jakarta", cfg.Timezone)
	assert.Equal(t, 10_000.0, cfg.Trade.InitialBalance)
	assert.Equal(t, 90, cfg.Window.SkipCandles)
	assert.False(t, cfg.Trade.DecideWhileArmed)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal.gemini_key")
	assert.NoError(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"missing pair", func(c *Config) { c.Pair = "" }, "pair is required"},
		{"unknown pair", func(c *Config) { c.Pair = "FOOBAR" }, "unknown instrument"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad start date", func(c *Config) { c.StartDate = "01/07/2025" }, "start_date"},
		{"end before start", func(c *Config) { c.EndDate = "2025-06-01" }, "must not be before"},
		{"zero balance", func(c *Config) { c.Trade.InitialBalance = 0 }, "trade.initial_balance"},
		{"negative spread", func(c *Config) { c.Trade.SpreadPoints = -1 }, "trade.spread_points"},
		{"zero expiry", func(c *Config) { c.Trade.OrderExpiryMinutes = 0 }, "trade.order_expiry_minutes"},
		{"bad fine tf", func(c *Config) { c.Window.FineTF = "X9" }, "window.fine_tf"},
		{"coarse finer than fine", func(c *Config) { c.Window.FineTF, c.Window.CoarseTF = "M15", "M1" }, "must not be finer"},
		{"zero skip", func(c *Config) { c.Window.SkipCandles = 0 }, "window.skip_candles"},
		{"unknown data source", func(c *Config) { c.Data.Source = "ftp" }, "data.source"},
		{"oanda without token", func(c *Config) { c.Data.Source = "oanda" }, "data.oanda_token"},
		{"unknown provider", func(c *Config) { c.Signal.Provider = "gpt" }, "signal.provider"},
		{"ollama needs no key", func(c *Config) { c.Signal.Provider, c.Signal.GeminiKey = "ollama", "" }, ""},
		{"bad ema", func(c *Config) { c.Signal.Source = "ema-cross"; c.Signal.EMA.Slow = 5 }, "0 < fast < slow"},
		{"ema needs no prompt", func(c *Config) { c.Signal.Source = "ema-cross"; c.PromptFile = "" }, ""},
		{"replay without log", func(c *Config) { c.Signal.Source = "replay" }, "signal.replay_log"},
		{"notify level", func(c *Config) { c.Notify.Level = 4 }, "notify.level"},
		{"s3 without bucket", func(c *Config) { c.S3.Enabled = true }, "s3.bucket"},
		{"postgres without dsn", func(c *Config) { c.Journal.Type = "postgres" }, "postgres_dsn"},
		{"unknown journal", func(c *Config) { c.Journal.Type = "mongo" }, "journal.type"},
		{"no journal", func(c *Config) { c.Journal.Type = "none" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDates(t *testing.T) {
	cfg := validConfig()
	start, end, err := cfg.Dates()
	require.NoError(t, err)

	// Midnight in Jakarta is 17:00 UTC the previous day.
	assert.Equal(t, time.Date(2025, 6, 30, 17, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, time.Date(2025, 7, 6, 17, 0, 0, 0, time.UTC), end.UTC())

	cfg.Timezone = ""
	start, _, err = cfg.Dates()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, start.Location())
}

func TestPromptPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := validConfig()
	cfg.PromptsDir = dir
	cfg.PromptFile = "scalper.txt"
	assert.Equal(t, filepath.Join(dir, "scalper.txt"), cfg.PromptPath())

	assert.Equal(t, "", cfg.ExtractorPromptPath())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extractor_prompt.txt"), []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "extractor_prompt.txt"), cfg.ExtractorPromptPath())

	cfg.ExtractorPromptFile = "/abs/extract.txt"
	assert.Equal(t, "/abs/extract.txt", cfg.ExtractorPromptPath())
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
		{"toml format", ".toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Pair = "GBP_USD"
			cfg.Trade.CloseAtEnd = true
			cfg.Window.SkipCandles = 30
			cfg.Signal.EMA.MinADX = 22.5
			path := filepath.Join(tmpDir, "nested", "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := Load(path)
			require.NoError(t, err)

			assert.Equal(t, "GBP_USD", loaded.Pair)
			assert.True(t, loaded.Trade.CloseAtEnd)
			assert.Equal(t, 30, loaded.Window.SkipCandles)
			assert.Equal(t, 22.5, loaded.Signal.EMA.MinADX)
			assert.Equal(t, cfg.Trade, loaded.Trade)
			assert.Equal(t, cfg.Journal, loaded.Journal)
		})
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pair: USD_JPY\ntrade:\n  lot_size: 0.5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "USD_JPY", cfg.Pair)
	assert.Equal(t, 0.5, cfg.Trade.LotSize)
	assert.Equal(t, 10_000.0, cfg.Trade.InitialBalance)
	assert.Equal(t, "M15", cfg.Window.CoarseTF)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse json config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BACKTESTER_GEMINI_API_KEY", "from-env")
	t.Setenv("BACKTESTER_NOTIFY_LEVEL", "3")
	t.Setenv("BACKTESTER_S3_ENABLED", "true")
	t.Setenv("BACKTESTER_REDIS_DB", "not-a-number")
	t.Setenv("CHART_IMG_KEY_2", "k2")
	t.Setenv("CHART_IMG_KEY_1", "k1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Signal.GeminiKey)
	assert.Equal(t, 3, cfg.Notify.Level)
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, 0, cfg.Data.Redis.DB)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Chart.Keys)
}

func TestApplyEnvIgnoresBlank(t *testing.T) {
	cfg := validConfig()
	env := map[string]string{"BACKTESTER_PAIR": "  ", "BACKTESTER_LOG_LEVEL": "debug"}
	ApplyEnv(&cfg, func(k string) string { return env[k] })
	assert.Equal(t, "EUR_USD", cfg.Pair)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestRedactedAndMergeSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Notify.TelegramToken = "tg"
	cfg.Journal.PostgresDSN = "postgres://u:p@h/db"
	cfg.Chart.Keys = []string{"k1"}

	red := cfg.Redacted()
	assert.Equal(t, "***", red.Signal.GeminiKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Journal.PostgresDSN)
	assert.Equal(t, "", red.S3.SecretKey)
	assert.Nil(t, red.Chart.Keys)
	assert.Equal(t, "test-key", cfg.Signal.GeminiKey)

	red.Pair = "GBP_USD"
	red.Notify.TelegramToken = "new-token"
	merged := cfg.MergeSecrets(red)
	assert.Equal(t, "GBP_USD", merged.Pair)
	assert.Equal(t, "test-key", merged.Signal.GeminiKey)
	assert.Equal(t, "new-token", merged.Notify.TelegramToken)
	assert.Equal(t, "postgres://u:p@h/db", merged.Journal.PostgresDSN)
	assert.Equal(t, []string{"k1"}, merged.Chart.Keys)
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, "json", FormatOf("a.JSON"))
	assert.Equal(t, "toml", FormatOf("a.toml"))
	assert.Equal(t, "yaml", FormatOf("a.yml"))
	assert.Equal(t, "yaml", FormatOf("a"))

	_, err := validConfig().Encode("ini")
	assert.Error(t, err)
}
